package bot

import (
	"context"
	"fmt"

	"github.com/weibaohui/insurebot/internal/eventbus"
	"github.com/weibaohui/insurebot/internal/model"
	"k8s.io/klog/v2"
)

type SessionStore interface {
	Get(ctx context.Context, chatID int64) (*model.Session, error)
	Save(ctx context.Context, sess *model.Session) error
}

// Service 处理单条入站消息：加载会话、执行状态机、写回会话
type Service struct {
	machine  *Machine
	sessions SessionStore
	bus      *eventbus.ConversationEventBus
}

func NewService(machine *Machine, sessions SessionStore, bus *eventbus.ConversationEventBus) *Service {
	return &Service{machine: machine, sessions: sessions, bus: bus}
}

// ProcessMessage 上下文取消或存储失败时返回错误，此时会话不会被写回
func (s *Service) ProcessMessage(ctx context.Context, msg InboundMessage) error {
	sess, err := s.sessions.Get(ctx, msg.ChatID)
	if err != nil {
		return err
	}

	from := sess.State
	next, err := s.machine.Process(ctx, sess, msg)
	if err != nil {
		klog.Warningf("消息处理中止: chatID=%d, state=%s, error=%v", msg.ChatID, from, err)
		return fmt.Errorf("process update for chat %d: %w", msg.ChatID, err)
	}
	sess.State = next

	if err := s.sessions.Save(ctx, sess); err != nil {
		klog.Errorf("保存会话失败: chatID=%d, error=%v", msg.ChatID, err)
		return err
	}

	s.publish(ctx, sess, from, msg)
	return nil
}

func (s *Service) publish(ctx context.Context, sess *model.Session, from model.ConversationState, msg InboundMessage) {
	if s.bus == nil || from == sess.State {
		return
	}
	event := eventbus.ConversationEvent{
		Type:      eventbus.ConversationStateChanged,
		ChatID:    sess.ChatID,
		FromState: from,
		ToState:   sess.State,
		Trigger:   msg.Trigger(),
	}
	if err := s.bus.Publish(ctx, event); err != nil {
		klog.Warningf("状态变更事件处理失败: chatID=%d, error=%v", sess.ChatID, err)
	}

	if sess.State == model.StateCompleted && sess.PolicyNumber != nil {
		event.Type = eventbus.ConversationPolicyIssued
		event.PolicyNumber = *sess.PolicyNumber
		if err := s.bus.Publish(ctx, event); err != nil {
			klog.Warningf("出单事件处理失败: chatID=%d, error=%v", sess.ChatID, err)
		}
	}
}
