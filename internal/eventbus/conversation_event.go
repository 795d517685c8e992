package eventbus

import "github.com/weibaohui/insurebot/internal/model"

type ConversationEventType string

const (
	ConversationStateChanged ConversationEventType = "StateChanged"
	ConversationPolicyIssued ConversationEventType = "PolicyIssued"
)

type ConversationEvent struct {
	Type         ConversationEventType
	ChatID       int64
	FromState    model.ConversationState
	ToState      model.ConversationState
	Trigger      string
	PolicyNumber string
}

type ConversationEventHandler = Handler[ConversationEvent]
type ConversationEventBus = Bus[ConversationEventType, ConversationEvent]

func NewConversationEventBus() *ConversationEventBus {
	return NewBus(func(e ConversationEvent) ConversationEventType { return e.Type })
}
