package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weibaohui/insurebot/internal/model"
	"github.com/weibaohui/insurebot/internal/repository"
	"github.com/weibaohui/insurebot/internal/service/export"
)

type mockSessionAdmin struct {
	FindFunc  func(ctx context.Context, chatID int64) (*model.Session, error)
	ResetFunc func(ctx context.Context, chatID int64) (*model.Session, error)
}

func (m *mockSessionAdmin) Find(ctx context.Context, chatID int64) (*model.Session, error) {
	return m.FindFunc(ctx, chatID)
}

func (m *mockSessionAdmin) Reset(ctx context.Context, chatID int64) (*model.Session, error) {
	return m.ResetFunc(ctx, chatID)
}

type mockTransitionLister struct {
	limit int
}

func (m *mockTransitionLister) ListByChat(ctx context.Context, chatID int64, limit int) ([]model.Transition, error) {
	m.limit = limit
	return []model.Transition{{ChatID: chatID, FromState: model.StateEntry, ToState: model.StateWaitingIdentityDoc, Trigger: "text:hi"}}, nil
}

type mockPolicyExporter struct {
	rows []export.PolicyRow
	data []byte
	err  error
}

func (m *mockPolicyExporter) ListPolicies(ctx context.Context, limit int) ([]export.PolicyRow, error) {
	return m.rows, m.err
}

func (m *mockPolicyExporter) ExportPoliciesXLSX(ctx context.Context, limit int) ([]byte, error) {
	return m.data, m.err
}

func newAdminEngine(h *AdminHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/healthz", Health)
	h.RegisterRoutes(r.Group("/api"))
	return r
}

func serve(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func founder(sess *model.Session, err error) func(ctx context.Context, chatID int64) (*model.Session, error) {
	return func(ctx context.Context, chatID int64) (*model.Session, error) {
		return sess, err
	}
}

func TestAdmin_GetSession(t *testing.T) {
	transitions := &mockTransitionLister{}
	sessions := &mockSessionAdmin{FindFunc: founder(&model.Session{ChatID: 42, State: model.StateWaitingVehicleDoc}, nil)}
	r := newAdminEngine(NewAdminHandler(sessions, transitions, &mockPolicyExporter{}))

	w := serve(r, http.MethodGet, "/api/admin/sessions/42?limit=5")
	require.Equal(t, http.StatusOK, w.Code)

	var resp SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, model.StateWaitingVehicleDoc, resp.Session.State)
	require.Len(t, resp.Transitions, 1)
	assert.Equal(t, 5, transitions.limit)
}

func TestAdmin_GetSessionErrors(t *testing.T) {
	cases := []struct {
		name string
		path string
		err  error
		code int
	}{
		{"not found", "/api/admin/sessions/1", repository.ErrNotFound, http.StatusNotFound},
		{"wrapped not found", "/api/admin/sessions/1", errors.Join(errors.New("lookup"), repository.ErrNotFound), http.StatusNotFound},
		{"storage", "/api/admin/sessions/1", errors.New("db down"), http.StatusInternalServerError},
		{"bad id", "/api/admin/sessions/abc", nil, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sessions := &mockSessionAdmin{FindFunc: founder(nil, tc.err)}
			r := newAdminEngine(NewAdminHandler(sessions, nil, &mockPolicyExporter{}))
			assert.Equal(t, tc.code, serve(r, http.MethodGet, tc.path).Code)
		})
	}
}

func TestAdmin_ResetSession(t *testing.T) {
	var resetID int64
	sessions := &mockSessionAdmin{ResetFunc: func(ctx context.Context, chatID int64) (*model.Session, error) {
		resetID = chatID
		return model.NewSession(chatID), nil
	}}
	r := newAdminEngine(NewAdminHandler(sessions, nil, &mockPolicyExporter{}))

	w := serve(r, http.MethodPost, "/api/admin/sessions/77/reset")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(77), resetID)

	var sess model.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	assert.Equal(t, model.StateEntry, sess.State)
}

func TestAdmin_Policies(t *testing.T) {
	exporter := &mockPolicyExporter{
		rows: []export.PolicyRow{{PolicyNumber: "POL-AAAA0001", ChatID: 1}},
		data: []byte("xlsx-bytes"),
	}
	r := newAdminEngine(NewAdminHandler(&mockSessionAdmin{}, nil, exporter))

	w := serve(r, http.MethodGet, "/api/admin/policies")
	require.Equal(t, http.StatusOK, w.Code)
	var rows []export.PolicyRow
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	assert.Equal(t, "POL-AAAA0001", rows[0].PolicyNumber)

	w = serve(r, http.MethodGet, "/api/admin/policies/export")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "xlsx-bytes", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "policies_")
	assert.Contains(t, w.Header().Get("Content-Type"), "spreadsheetml")

	exporter.err = errors.New("db down")
	assert.Equal(t, http.StatusInternalServerError, serve(r, http.MethodGet, "/api/admin/policies/export").Code)
}

func TestHealth(t *testing.T) {
	r := newAdminEngine(NewAdminHandler(&mockSessionAdmin{}, nil, &mockPolicyExporter{}))
	w := serve(r, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
