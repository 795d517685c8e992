// Package recognition 是 Mindee v1 REST 接口的最小客户端
package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/weibaohui/insurebot/config"
	"k8s.io/klog/v2"
)

var (
	ErrJobFailed  = errors.New("recognition job failed")
	ErrJobTimeout = errors.New("recognition job did not finish in time")
)

// APIError 识别服务返回非 2xx
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("recognition API error: status=%d, body=%s", e.StatusCode, e.Body)
}

type Client struct {
	BaseURL      string
	APIKey       string
	PollInterval time.Duration
	MaxPolls     int
	Client       *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		BaseURL:      strings.TrimRight(cfg.Recognition.APIURL, "/"),
		APIKey:       cfg.Recognition.APIKey,
		PollInterval: cfg.Recognition.PollInterval,
		MaxPolls:     cfg.Recognition.MaxPolls,
		Client: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

type jobResponse struct {
	Job struct {
		ID     string `json:"id"`
		Status string `json:"status"` // waiting, processing, completed, failed
		Error  *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"job"`
	Document json.RawMessage `json:"document"`
}

// Parse 按端点配置选择同步或异步接口
func (c *Client) Parse(ctx context.Context, ep config.RecognitionEndpoint, filePath string) ([]byte, error) {
	if ep.Async {
		return c.EnqueueAndPredict(ctx, ep, filePath)
	}
	return c.Predict(ctx, ep, filePath)
}

// Predict 同步识别，返回原始响应体
func (c *Client) Predict(ctx context.Context, ep config.RecognitionEndpoint, filePath string) ([]byte, error) {
	klog.V(6).Infof("识别请求: endpoint=%s/%s v%s", ep.Account, ep.Name, ep.Version)
	return c.upload(ctx, c.productURL(ep)+"/predict", filePath)
}

// EnqueueAndPredict 提交异步任务并轮询直到结果可用
func (c *Client) EnqueueAndPredict(ctx context.Context, ep config.RecognitionEndpoint, filePath string) ([]byte, error) {
	body, err := c.upload(ctx, c.productURL(ep)+"/predict_async", filePath)
	if err != nil {
		return nil, err
	}

	var enqueued jobResponse
	if err := json.Unmarshal(body, &enqueued); err != nil {
		return nil, fmt.Errorf("failed to unmarshal enqueue response: %w", err)
	}
	if enqueued.Job.ID == "" {
		return nil, fmt.Errorf("enqueue response carries no job id")
	}
	klog.V(6).Infof("识别任务已入队: endpoint=%s/%s, job=%s", ep.Account, ep.Name, enqueued.Job.ID)

	queueURL := c.productURL(ep) + "/documents/queue/" + enqueued.Job.ID
	for attempt := 1; attempt <= c.maxPolls(); attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.PollInterval):
		}

		body, err := c.get(ctx, queueURL)
		if err != nil {
			return nil, err
		}

		var polled jobResponse
		if err := json.Unmarshal(body, &polled); err != nil {
			return nil, fmt.Errorf("failed to unmarshal queue response: %w", err)
		}
		if polled.Job.Status == "failed" {
			if polled.Job.Error != nil {
				return nil, fmt.Errorf("%w: %s", ErrJobFailed, polled.Job.Error.Message)
			}
			return nil, ErrJobFailed
		}
		if len(polled.Document) > 0 && string(polled.Document) != "null" {
			klog.V(6).Infof("识别任务完成: job=%s, attempt=%d", enqueued.Job.ID, attempt)
			return body, nil
		}
		klog.V(6).Infof("识别任务进行中: job=%s, status=%s, attempt=%d", enqueued.Job.ID, polled.Job.Status, attempt)
	}
	return nil, ErrJobTimeout
}

func (c *Client) maxPolls() int {
	if c.MaxPolls <= 0 {
		return 1
	}
	return c.MaxPolls
}

func (c *Client) productURL(ep config.RecognitionEndpoint) string {
	return fmt.Sprintf("%s/products/%s/%s/v%s", c.BaseURL, ep.Account, ep.Name, ep.Version)
}

func (c *Client) upload(ctx context.Context, url, filePath string) ([]byte, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("document", filepath.Base(filePath))
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to copy document: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.do(req)
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Authorization", "Token "+c.APIKey)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
