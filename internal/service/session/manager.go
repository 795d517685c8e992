// Package session 封装会话的 get-or-create 与持久化
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/weibaohui/insurebot/internal/model"
	"github.com/weibaohui/insurebot/internal/repository"
	"k8s.io/klog/v2"
)

type Manager struct {
	repo repository.SessionRepository
	now  func() time.Time
}

func NewManager(repo repository.SessionRepository) *Manager {
	return &Manager{repo: repo, now: time.Now}
}

// Get 获取会话，不存在时创建处于入口状态的新会话
func (m *Manager) Get(ctx context.Context, chatID int64) (*model.Session, error) {
	sess, err := m.repo.GetByChatID(ctx, chatID)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to load session %d: %w", chatID, err)
	}

	sess = model.NewSession(chatID)
	now := m.now()
	sess.CreatedAt = now
	sess.UpdatedAt = now
	if err := m.repo.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session %d: %w", chatID, err)
	}
	klog.V(6).Infof("创建新会话: chatID=%d", chatID)
	return sess, nil
}

// Find 只读查询，不创建
func (m *Manager) Find(ctx context.Context, chatID int64) (*model.Session, error) {
	return m.repo.GetByChatID(ctx, chatID)
}

// Save 写回会话并刷新 UpdatedAt
func (m *Manager) Save(ctx context.Context, sess *model.Session) error {
	sess.UpdatedAt = m.now()
	if err := m.repo.Update(ctx, sess); err != nil {
		return fmt.Errorf("failed to save session %d: %w", sess.ChatID, err)
	}
	return nil
}

// Reset 管理端重置会话
func (m *Manager) Reset(ctx context.Context, chatID int64) (*model.Session, error) {
	sess, err := m.repo.GetByChatID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	sess.Reset()
	if err := m.Save(ctx, sess); err != nil {
		return nil, err
	}
	klog.V(6).Infof("会话已重置: chatID=%d", chatID)
	return sess, nil
}

// ListCompleted 列出已出单会话
func (m *Manager) ListCompleted(ctx context.Context, limit int) ([]model.Session, error) {
	return m.repo.ListCompleted(ctx, limit)
}
