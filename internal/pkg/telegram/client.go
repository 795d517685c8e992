// Package telegram 基于 telegram-bot-api 封装机器人需要的几个 Bot API 调用
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/weibaohui/insurebot/config"
	"k8s.io/klog/v2"
)

// APIError Bot API 返回 ok=false
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s failed: code=%d, %s", e.Method, e.Code, e.Description)
}

type Client struct {
	baseURL string
	bot     *tgbotapi.BotAPI
	httpClient tgbotapi.HTTPClient
}

func NewClient(cfg *config.Config) *Client {
	return New(cfg.Telegram.APIURL, cfg.Telegram.BotToken, &http.Client{Timeout: time.Minute})
}

// New 不调用 getMe，启动时不依赖 Bot API 可达
func New(baseURL, token string, httpClient tgbotapi.HTTPClient) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	bot := &tgbotapi.BotAPI{Token: token, Client: httpClient, Buffer: 100}
	bot.SetAPIEndpoint(baseURL + "/bot%s/%s")
	return &Client{baseURL: baseURL, bot: bot, httpClient: httpClient}
}

// api 返回绑定了 ctx 的副本，库本身的调用不接收 context
func (c *Client) api(ctx context.Context) *tgbotapi.BotAPI {
	bot := *c.bot
	bot.Client = contextClient{ctx: ctx, client: c.httpClient}
	return &bot
}

type contextClient struct {
	ctx    context.Context
	client tgbotapi.HTTPClient
}

func (c contextClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req.WithContext(c.ctx))
}

// SendText 发送文本消息
func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	klog.V(6).Infof("发送消息: chatID=%d, length=%d", chatID, len(text))
	if _, err := c.api(ctx).Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return wrapError("sendMessage", err)
	}
	return nil
}

// DownloadFile 先 getFile 拿到路径再下载内容
func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	file, err := c.api(ctx).GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, wrapError("getFile", err)
	}
	if file.FilePath == "" {
		return nil, fmt.Errorf("telegram getFile returned empty file_path for %s", fileID)
	}

	fileURL := fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.bot.Token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	klog.V(6).Infof("文件下载完成: fileID=%s, size=%d", fileID, len(data))
	return data, nil
}

// SendDocument 以 multipart 上传文件
func (c *Client) SendDocument(ctx context.Context, chatID int64, r io.Reader, filename, caption string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileReader{Name: filename, Reader: r})
	doc.Caption = caption
	klog.V(6).Infof("发送文件: chatID=%d, filename=%s", chatID, filename)
	if _, err := c.api(ctx).Send(doc); err != nil {
		return wrapError("sendDocument", err)
	}
	return nil
}

// SetWebhook 注册 webhook 地址，secret 为空时不校验。
// WebhookConfig 没有 secret_token 字段，直接拼参数
func (c *Client) SetWebhook(ctx context.Context, webhookURL, secret string) error {
	if _, err := url.ParseRequestURI(webhookURL); err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	params := tgbotapi.Params{}
	params.AddNonEmpty("url", webhookURL)
	params.AddNonEmpty("secret_token", secret)
	if err := params.AddInterface("allowed_updates", []string{"message"}); err != nil {
		return err
	}
	if _, err := c.api(ctx).MakeRequest("setWebhook", params); err != nil {
		return wrapError("setWebhook", err)
	}
	return nil
}

func wrapError(method string, err error) error {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		return &APIError{Method: method, Code: tgErr.Code, Description: tgErr.Message}
	}
	return fmt.Errorf("telegram %s request failed: %w", method, err)
}
