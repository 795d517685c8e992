package repository

import (
	"context"
	"errors"

	"github.com/weibaohui/insurebot/internal/model"
	"gorm.io/gorm"
)

type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository 创建会话仓储
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) GetByChatID(ctx context.Context, chatID int64) (*model.Session, error) {
	var session model.Session
	err := r.db.WithContext(ctx).Where("chat_id = ?", chatID).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepository) Create(ctx context.Context, session *model.Session) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *sessionRepository) Update(ctx context.Context, session *model.Session) error {
	return r.db.WithContext(ctx).Save(session).Error
}

func (r *sessionRepository) ListCompleted(ctx context.Context, limit int) ([]model.Session, error) {
	var sessions []model.Session
	query := r.db.WithContext(ctx).
		Where("state = ? AND policy_number IS NOT NULL", model.StateCompleted).
		Order("policy_issued_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}
