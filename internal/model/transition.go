package model

import "time"

// Transition 会话状态变更的审计记录
type Transition struct {
	ID        uint              `json:"id" gorm:"primaryKey"`
	ChatID    int64             `json:"chat_id" gorm:"index;not null"`
	FromState ConversationState `json:"from_state" gorm:"size:50"`
	ToState   ConversationState `json:"to_state" gorm:"size:50;not null"`
	Trigger   string            `json:"trigger" gorm:"size:255"`
	CreatedAt time.Time         `json:"created_at"`
}

func (Transition) TableName() string {
	return "conversation_transitions"
}
