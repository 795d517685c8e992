// Package bot 实现会话流程：全局命令、状态处理与分发
package bot

import (
	"context"
	"io"
	"strings"

	"github.com/weibaohui/insurebot/internal/model"
	"github.com/weibaohui/insurebot/internal/service/policy"
)

// InboundMessage 从平台更新中抽取出的最小消息
type InboundMessage struct {
	ChatID        int64
	Text          string
	ImageRef      string // 图片的平台文件 ID，无图片为空
	HasAttachment bool   // 任意附件，含非图片文档
}

func (m InboundMessage) HasImage() bool {
	return m.ImageRef != ""
}

// Normalized 去空白并转小写后的文本
func (m InboundMessage) Normalized() string {
	return normalize(m.Text)
}

// Trigger 审计日志中的触发描述
func (m InboundMessage) Trigger() string {
	switch {
	case m.HasImage():
		return "image"
	case m.HasAttachment:
		return "attachment"
	default:
		return "text:" + strings.TrimSpace(m.Text)
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

type Transport interface {
	SendText(ctx context.Context, chatID int64, text string) error
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
	SendDocument(ctx context.Context, chatID int64, r io.Reader, filename, caption string) error
}

type DocumentExtractor interface {
	ExtractIdentity(ctx context.Context, image []byte) *model.ExtractedData
	ExtractVehicleFront(ctx context.Context, image []byte) *model.ExtractedData
	ExtractVehicleBack(ctx context.Context, image []byte) *model.ExtractedData
}

type TextGenerator interface {
	Generate(ctx context.Context, prompt, systemContext string) string
}

type PolicyWriter interface {
	Write(ctx context.Context, sess *model.Session, terms policy.Terms) string
}

// StateHandler 单个状态的处理逻辑，返回下一个状态
type StateHandler interface {
	Handle(ctx context.Context, sess *model.Session, msg InboundMessage) (model.ConversationState, error)
}

// GlobalHandler 在状态处理之前执行的全局命令
type GlobalHandler interface {
	Name() string
	HandleCommand(ctx context.Context, sess *model.Session, msg InboundMessage) (bool, model.ConversationState, error)
}

const (
	keywordYes  = "yes"
	keywordNo   = "no"
	keywordDone = "done"
)

var confirmKeywords = map[string]bool{
	"confirm":   true,
	"i confirm": true,
	"confirmed": true,
}

func isConfirmKeyword(text string) bool {
	return confirmKeywords[normalize(text)]
}
