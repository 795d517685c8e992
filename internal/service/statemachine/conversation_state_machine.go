package statemachine

import (
	"fmt"

	"github.com/weibaohui/insurebot/internal/model"
	"k8s.io/klog/v2"
)

// ConversationTransition 定义会话状态迁移
type ConversationTransition struct {
	From model.ConversationState
	To   model.ConversationState
}

// ConversationStateMachine 会话状态机
type ConversationStateMachine struct {
	// 定义所有合法的状态迁移
	allowedTransitions map[ConversationTransition]bool
	states             map[model.ConversationState]bool
}

// AllStates 所有会话状态，按流程顺序
var AllStates = []model.ConversationState{
	model.StateEntry,
	model.StateWaitingIdentityDoc,
	model.StateWaitingVehicleDoc,
	model.StateWaitingConfirm,
	model.StatePriceConfirmation,
	model.StateCompleted,
	model.StateError,
}

// NewConversationStateMachine 创建新的会话状态机
func NewConversationStateMachine() *ConversationStateMachine {
	sm := &ConversationStateMachine{
		allowedTransitions: make(map[ConversationTransition]bool),
		states:             make(map[model.ConversationState]bool),
	}

	// start -> waiting_identity_doc -> waiting_vehicle_doc -> waiting_confirmation
	// -> price_confirmation -> completed
	transitions := []ConversationTransition{
		{model.StateEntry, model.StateWaitingIdentityDoc},
		{model.StateWaitingIdentityDoc, model.StateWaitingVehicleDoc},
		{model.StateWaitingVehicleDoc, model.StateWaitingConfirm},
		{model.StateWaitingConfirm, model.StatePriceConfirmation},
		{model.StatePriceConfirmation, model.StateCompleted},

		// 用户否认数据，重新提交证件
		{model.StateWaitingConfirm, model.StateWaitingIdentityDoc},
	}

	for _, s := range AllStates {
		sm.states[s] = true
		// 每个状态都允许重试（保持不变）、重置回入口以及进入错误态
		transitions = append(transitions,
			ConversationTransition{s, s},
			ConversationTransition{s, model.StateEntry},
			ConversationTransition{s, model.StateError},
		)
	}

	for _, t := range transitions {
		sm.allowedTransitions[t] = true
	}

	return sm
}

// IsKnown 判断状态是否已定义
func (sm *ConversationStateMachine) IsKnown(state model.ConversationState) bool {
	return sm.states[state]
}

// CanTransition 检查状态迁移是否合法
func (sm *ConversationStateMachine) CanTransition(from, to model.ConversationState) bool {
	return sm.allowedTransitions[ConversationTransition{From: from, To: to}]
}

// ValidateTransition 验证状态迁移并返回错误
func (sm *ConversationStateMachine) ValidateTransition(from, to model.ConversationState) error {
	if !sm.CanTransition(from, to) {
		return &InvalidStateTransitionError{
			From: string(from),
			To:   string(to),
		}
	}
	return nil
}

// Transition 执行状态迁移（带日志）
func (sm *ConversationStateMachine) Transition(from, to model.ConversationState, chatID int64) error {
	if err := sm.ValidateTransition(from, to); err != nil {
		klog.Warningf("会话状态迁移被拒绝: chatID=%d, %s -> %s, error=%v", chatID, from, to, err)
		return err
	}

	if from != to {
		klog.V(6).Infof("会话状态迁移成功: chatID=%d, %s -> %s", chatID, from, to)
	}
	return nil
}

// InvalidStateTransitionError 无效的状态迁移错误
type InvalidStateTransitionError struct {
	From string
	To   string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid conversation state transition: %s -> %s", e.From, e.To)
}
