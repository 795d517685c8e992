package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weibaohui/insurebot/internal/service/bot"
)

type mockProcessor struct {
	ProcessFunc func(ctx context.Context, msg bot.InboundMessage) error
	messages    []bot.InboundMessage
}

func (m *mockProcessor) ProcessMessage(ctx context.Context, msg bot.InboundMessage) error {
	m.messages = append(m.messages, msg)
	if m.ProcessFunc != nil {
		return m.ProcessFunc(ctx, msg)
	}
	return nil
}

type mockSubmitter struct {
	SubmitFunc func(msg bot.InboundMessage) error
	messages   []bot.InboundMessage
}

func (m *mockSubmitter) Submit(msg bot.InboundMessage) error {
	m.messages = append(m.messages, msg)
	if m.SubmitFunc != nil {
		return m.SubmitFunc(msg)
	}
	return nil
}

func newWebhookEngine(h *WebhookHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.RegisterRoutes(r.Group("/api"))
	return r
}

func postUpdate(r *gin.Engine, body string, secret string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(secretHeader, secret)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

const photoUpdate = `{"update_id":1,"message":{"message_id":5,"chat":{"id":42,"type":"private"},
	"photo":[{"file_id":"small","width":90,"height":90},{"file_id":"large","width":1280,"height":960},{"file_id":"mid","width":320,"height":240}]}}`

func TestWebhook_SyncProcessesPhoto(t *testing.T) {
	processor := &mockProcessor{}
	r := newWebhookEngine(NewWebhookHandler("", processor, nil))

	w := postUpdate(r, photoUpdate, "")

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, processor.messages, 1)
	msg := processor.messages[0]
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, "large", msg.ImageRef)
	assert.True(t, msg.HasAttachment)
}

func TestWebhook_SyncFailureReturns500(t *testing.T) {
	processor := &mockProcessor{ProcessFunc: func(ctx context.Context, msg bot.InboundMessage) error {
		return errors.New("db down")
	}}
	r := newWebhookEngine(NewWebhookHandler("", processor, nil))

	w := postUpdate(r, `{"update_id":2,"message":{"chat":{"id":42},"text":"hi"}}`, "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestWebhook_AsyncSubmits(t *testing.T) {
	processor := &mockProcessor{}
	submitter := &mockSubmitter{}
	r := newWebhookEngine(NewWebhookHandler("", processor, submitter))

	w := postUpdate(r, `{"update_id":3,"message":{"chat":{"id":7},"text":"/reset"}}`, "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, processor.messages)
	require.Len(t, submitter.messages, 1)
	assert.Equal(t, "/reset", submitter.messages[0].Text)
}

func TestWebhook_AsyncSubmitFailure(t *testing.T) {
	submitter := &mockSubmitter{SubmitFunc: func(msg bot.InboundMessage) error {
		return errors.New("dispatcher is stopped")
	}}
	r := newWebhookEngine(NewWebhookHandler("", &mockProcessor{}, submitter))

	w := postUpdate(r, `{"update_id":3,"message":{"chat":{"id":7},"text":"hi"}}`, "")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestWebhook_IgnoresEmptyUpdates(t *testing.T) {
	processor := &mockProcessor{}
	r := newWebhookEngine(NewWebhookHandler("", processor, nil))

	for _, body := range []string{
		`{"update_id":4}`,
		`{"update_id":5,"message":{"chat":{"id":42}}}`,
	} {
		w := postUpdate(r, body, "")
		assert.Equal(t, http.StatusOK, w.Code)
	}
	assert.Empty(t, processor.messages)
}

func TestWebhook_SecretToken(t *testing.T) {
	processor := &mockProcessor{}
	r := newWebhookEngine(NewWebhookHandler("s3cret", processor, nil))

	assert.Equal(t, http.StatusUnauthorized, postUpdate(r, photoUpdate, "").Code)
	assert.Equal(t, http.StatusUnauthorized, postUpdate(r, photoUpdate, "wrong").Code)
	assert.Equal(t, http.StatusOK, postUpdate(r, photoUpdate, "s3cret").Code)
	assert.Len(t, processor.messages, 1)
}

func TestWebhook_BadJSON(t *testing.T) {
	r := newWebhookEngine(NewWebhookHandler("", &mockProcessor{}, nil))
	assert.Equal(t, http.StatusBadRequest, postUpdate(r, `{not json`, "").Code)
}

func TestToInboundMessage(t *testing.T) {
	msg, ok := ToInboundMessage(tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: 9},
		Document: &tgbotapi.Document{FileID: "scan", MimeType: "image/png"},
	}})
	require.True(t, ok)
	assert.Equal(t, "scan", msg.ImageRef)

	msg, ok = ToInboundMessage(tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: 9},
		Document: &tgbotapi.Document{FileID: "contract", MimeType: "application/pdf"},
	}})
	require.True(t, ok)
	assert.Empty(t, msg.ImageRef)
	assert.True(t, msg.HasAttachment)

	_, ok = ToInboundMessage(tgbotapi.Update{})
	assert.False(t, ok)

	_, ok = ToInboundMessage(tgbotapi.Update{Message: &tgbotapi.Message{Text: "no chat"}})
	assert.False(t, ok)
}
