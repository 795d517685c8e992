package handler

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/weibaohui/insurebot/internal/pkg/telegram"
	"github.com/weibaohui/insurebot/internal/service/bot"
	"k8s.io/klog/v2"
)

const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

type MessageProcessor interface {
	ProcessMessage(ctx context.Context, msg bot.InboundMessage) error
}

type MessageSubmitter interface {
	Submit(msg bot.InboundMessage) error
}

// WebhookHandler 接收 Telegram 推送的更新
type WebhookHandler struct {
	secret    string
	processor MessageProcessor
	submitter MessageSubmitter
}

// NewWebhookHandler submitter 为空时在请求内同步处理
func NewWebhookHandler(secret string, processor MessageProcessor, submitter MessageSubmitter) *WebhookHandler {
	return &WebhookHandler{secret: secret, processor: processor, submitter: submitter}
}

func (h *WebhookHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/webhook", h.Handle)
}

// Handle 处理单条更新
func (h *WebhookHandler) Handle(c *gin.Context) {
	if h.secret != "" && subtle.ConstantTimeCompare([]byte(c.GetHeader(secretHeader)), []byte(h.secret)) != 1 {
		klog.Warningf("webhook 密钥校验失败: remote=%s", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid secret token"})
		return
	}

	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, ok := ToInboundMessage(update)
	if !ok {
		klog.V(6).Infof("忽略无内容的更新: updateID=%d", update.UpdateID)
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	if h.submitter != nil {
		if err := h.submitter.Submit(msg); err != nil {
			klog.Errorf("更新入队失败: chatID=%d, error=%v", msg.ChatID, err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	if err := h.processor.ProcessMessage(c.Request.Context(), msg); err != nil {
		klog.Errorf("同步处理更新失败: chatID=%d, error=%v", msg.ChatID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ToInboundMessage 没有消息或聊天，或消息既无文本也无附件时返回 false
func ToInboundMessage(update tgbotapi.Update) (bot.InboundMessage, bool) {
	m := update.Message
	if m == nil || m.Chat == nil {
		return bot.InboundMessage{}, false
	}
	if m.Text == "" && !telegram.HasAttachment(m) {
		return bot.InboundMessage{}, false
	}
	return bot.InboundMessage{
		ChatID:        m.Chat.ID,
		Text:          m.Text,
		ImageRef:      telegram.ImageFileID(m),
		HasAttachment: telegram.HasAttachment(m),
	}, true
}
