package model

import (
	"time"

	"gorm.io/datatypes"
)

// ConversationState 会话所处的步骤
type ConversationState string

const (
	StateEntry              ConversationState = "start"
	StateWaitingIdentityDoc ConversationState = "waiting_identity_doc"
	StateWaitingVehicleDoc  ConversationState = "waiting_vehicle_doc"
	StateWaitingConfirm     ConversationState = "waiting_confirmation"
	StatePriceConfirmation  ConversationState = "price_confirmation"
	StateCompleted          ConversationState = "completed"
	StateError              ConversationState = "error"
)

// DocumentKind 识别结果对应的证件类型
type DocumentKind string

const (
	DocumentIdentity     DocumentKind = "identity"
	DocumentVehicleFront DocumentKind = "vehicle_front"
	DocumentVehicleBack  DocumentKind = "vehicle_back"
)

// ExtractedData 单张证件的结构化识别结果
type ExtractedData struct {
	DocumentKind DocumentKind      `json:"document_kind"`
	Fields       map[string]string `json:"fields"`
	Confidence   float64           `json:"confidence"` // 0 表示识别失败
	RawPayload   string            `json:"raw_payload"`
}

// Succeeded 识别是否成功
func (d *ExtractedData) Succeeded() bool {
	return d != nil && d.Confidence > 0
}

// Session 每个聊天一条的会话记录
type Session struct {
	ChatID    int64             `json:"chat_id" gorm:"primaryKey;autoIncrement:false"`
	State     ConversationState `json:"state" gorm:"size:50;not null;default:start"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`

	RawIdentityDocumentText string         `json:"raw_identity_document_text" gorm:"type:text"`
	VehicleDocFrontRef      *string        `json:"vehicle_doc_front_ref" gorm:"size:255"`
	VehicleDocBackRef       *string        `json:"vehicle_doc_back_ref" gorm:"size:255"`
	ExtractedIdentity       *ExtractedData `json:"extracted_identity" gorm:"type:text;serializer:json"`
	ExtractedVehicleFront   *ExtractedData `json:"extracted_vehicle_front" gorm:"type:text;serializer:json"`
	ExtractedVehicleBack    *ExtractedData `json:"extracted_vehicle_back" gorm:"type:text;serializer:json"`

	DataConfirmed  bool       `json:"data_confirmed" gorm:"default:false"`
	PriceConfirmed bool       `json:"price_confirmed" gorm:"default:false"`
	PolicyNumber   *string    `json:"policy_number" gorm:"size:64;index"`
	PolicyIssuedAt *time.Time `json:"policy_issued_at"`

	ExtraData datatypes.JSONMap `json:"extra_data" gorm:"type:text"`
}

func (Session) TableName() string {
	return "conversation_sessions"
}

// NewSession 创建处于入口状态的新会话
func NewSession(chatID int64) *Session {
	return &Session{
		ChatID:    chatID,
		State:     StateEntry,
		ExtraData: datatypes.JSONMap{},
	}
}

// Reset 清空所有可变字段并回到入口状态，保留 ChatID 与 CreatedAt
func (s *Session) Reset() {
	s.State = StateEntry
	s.ClearDocuments()
	s.DataConfirmed = false
	s.PriceConfirmed = false
	s.PolicyNumber = nil
	s.PolicyIssuedAt = nil
	s.ExtraData = datatypes.JSONMap{}
}

// ClearDocuments 清空已收集的证件数据
func (s *Session) ClearDocuments() {
	s.RawIdentityDocumentText = ""
	s.VehicleDocFrontRef = nil
	s.VehicleDocBackRef = nil
	s.ExtractedIdentity = nil
	s.ExtractedVehicleFront = nil
	s.ExtractedVehicleBack = nil
}
