package repository

import (
	"context"
	"errors"

	"github.com/weibaohui/insurebot/internal/model"
)

// ErrNotFound 记录不存在错误
var ErrNotFound = errors.New("record not found")

type SessionRepository interface {
	// GetByChatID 按聊天 ID 获取会话，不存在时返回 ErrNotFound
	GetByChatID(ctx context.Context, chatID int64) (*model.Session, error)
	Create(ctx context.Context, session *model.Session) error
	// Update 整条覆盖写入
	Update(ctx context.Context, session *model.Session) error
	// ListCompleted 列出已出单的会话，按出单时间倒序
	ListCompleted(ctx context.Context, limit int) ([]model.Session, error)
}

type TransitionRepository interface {
	Create(ctx context.Context, transition *model.Transition) error
	ListByChat(ctx context.Context, chatID int64, limit int) ([]model.Transition, error)
}
