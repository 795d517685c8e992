package repository

import (
	"context"

	"github.com/weibaohui/insurebot/internal/model"
	"gorm.io/gorm"
)

type transitionRepository struct {
	db *gorm.DB
}

// NewTransitionRepository 创建状态变更审计仓储
func NewTransitionRepository(db *gorm.DB) TransitionRepository {
	return &transitionRepository{db: db}
}

func (r *transitionRepository) Create(ctx context.Context, transition *model.Transition) error {
	return r.db.WithContext(ctx).Create(transition).Error
}

// ListByChat 按时间正序返回某个聊天的状态变更
func (r *transitionRepository) ListByChat(ctx context.Context, chatID int64, limit int) ([]model.Transition, error) {
	var transitions []model.Transition
	query := r.db.WithContext(ctx).Where("chat_id = ?", chatID).Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&transitions).Error; err != nil {
		return nil, err
	}
	return transitions, nil
}
