package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weibaohui/insurebot/internal/model"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	if err := db.AutoMigrate(&model.Session{}, &model.Transition{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func strPtr(s string) *string { return &s }

func TestSessionRepository_GetByChatIDNotFound(t *testing.T) {
	repo := NewSessionRepository(setupDB(t))

	_, err := repo.GetByChatID(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionRepository_CreateAndUpdate(t *testing.T) {
	repo := NewSessionRepository(setupDB(t))
	ctx := context.Background()

	sess := model.NewSession(42)
	require.NoError(t, repo.Create(ctx, sess))

	got, err := repo.GetByChatID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, model.StateEntry, got.State)
	assert.Nil(t, got.ExtractedIdentity)

	got.State = model.StateWaitingVehicleDoc
	got.RawIdentityDocumentText = `{"document":{}}`
	got.ExtractedIdentity = &model.ExtractedData{
		DocumentKind: model.DocumentIdentity,
		Fields:       map[string]string{"FirstName": "JOHN", "LastName": "DOE"},
		Confidence:   1,
	}
	got.VehicleDocFrontRef = strPtr("file-front")
	got.ExtraData["lang"] = "en"
	require.NoError(t, repo.Update(ctx, got))

	reloaded, err := repo.GetByChatID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, model.StateWaitingVehicleDoc, reloaded.State)
	require.NotNil(t, reloaded.ExtractedIdentity)
	assert.Equal(t, "JOHN", reloaded.ExtractedIdentity.Fields["FirstName"])
	assert.Equal(t, 1.0, reloaded.ExtractedIdentity.Confidence)
	require.NotNil(t, reloaded.VehicleDocFrontRef)
	assert.Equal(t, "file-front", *reloaded.VehicleDocFrontRef)
	assert.Nil(t, reloaded.VehicleDocBackRef)
	assert.Equal(t, "en", reloaded.ExtraData["lang"])
}

func TestSessionRepository_ListCompleted(t *testing.T) {
	repo := NewSessionRepository(setupDB(t))
	ctx := context.Background()

	older := time.Now().Add(-time.Hour)
	newer := time.Now()

	sessions := []*model.Session{
		{ChatID: 1, State: model.StateCompleted, PolicyNumber: strPtr("POL-AAAA0001"), PolicyIssuedAt: &older},
		{ChatID: 2, State: model.StateCompleted, PolicyNumber: strPtr("POL-AAAA0002"), PolicyIssuedAt: &newer},
		{ChatID: 3, State: model.StateWaitingVehicleDoc},
	}
	for _, s := range sessions {
		require.NoError(t, repo.Create(ctx, s))
	}

	list, err := repo.ListCompleted(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(2), list[0].ChatID)
	assert.Equal(t, int64(1), list[1].ChatID)

	limited, err := repo.ListCompleted(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
