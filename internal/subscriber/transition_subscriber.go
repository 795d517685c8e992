package subscriber

import (
	"context"
	"fmt"

	"github.com/weibaohui/insurebot/internal/eventbus"
	"github.com/weibaohui/insurebot/internal/model"
	"k8s.io/klog/v2"
)

type transitionRecorder interface {
	Create(ctx context.Context, transition *model.Transition) error
}

// TransitionSubscriber 把状态变更写入审计表
type TransitionSubscriber struct {
	repo transitionRecorder
}

func NewTransitionSubscriber(repo transitionRecorder) *TransitionSubscriber {
	return &TransitionSubscriber{repo: repo}
}

func (s *TransitionSubscriber) Register(bus *eventbus.ConversationEventBus) {
	if bus == nil {
		return
	}
	bus.Subscribe(eventbus.ConversationStateChanged, s.handleStateChanged)
	bus.Subscribe(eventbus.ConversationPolicyIssued, s.handlePolicyIssued)
}

func (s *TransitionSubscriber) handleStateChanged(ctx context.Context, event eventbus.ConversationEvent) error {
	if event.ChatID == 0 {
		return fmt.Errorf("聊天ID为空")
	}
	transition := &model.Transition{
		ChatID:    event.ChatID,
		FromState: event.FromState,
		ToState:   event.ToState,
		Trigger:   truncate(event.Trigger, 255),
	}
	if err := s.repo.Create(ctx, transition); err != nil {
		klog.Errorf("记录状态变更失败: chatID=%d, %s -> %s, error=%v", event.ChatID, event.FromState, event.ToState, err)
		return err
	}
	klog.V(6).Infof("记录状态变更: chatID=%d, %s -> %s", event.ChatID, event.FromState, event.ToState)
	return nil
}

func (s *TransitionSubscriber) handlePolicyIssued(ctx context.Context, event eventbus.ConversationEvent) error {
	klog.Infof("保单已签发: chatID=%d, policy=%s", event.ChatID, event.PolicyNumber)
	return nil
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
