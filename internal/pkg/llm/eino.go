package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/weibaohui/insurebot/config"
	"k8s.io/klog/v2"
)

// EinoCompleter 使用 Eino 的 OpenAI ChatModel 作为后端
type EinoCompleter struct {
	chatModel model.BaseChatModel
}

// NewEinoCompleter 创建 Eino 后端
func NewEinoCompleter(ctx context.Context, cfg *config.Config) (*EinoCompleter, error) {
	modelConfig := &openai.ChatModelConfig{
		APIKey: cfg.LLM.APIKey,
		Model:  cfg.LLM.Model,
	}
	if cfg.LLM.APIURL != "" {
		modelConfig.BaseURL = cfg.LLM.APIURL
	}
	if cfg.LLM.MaxTokens > 0 {
		maxTokens := cfg.LLM.MaxTokens
		modelConfig.MaxTokens = &maxTokens
	}
	if cfg.LLM.Temperature > 0 {
		temperature := float32(cfg.LLM.Temperature)
		modelConfig.Temperature = &temperature
	}

	chatModel, err := openai.NewChatModel(ctx, modelConfig)
	if err != nil {
		klog.Errorf("[EinoCompleter] 创建 ChatModel 失败: %v", err)
		return nil, err
	}
	klog.V(6).Infof("[EinoCompleter] ChatModel 创建成功: model=%s", cfg.LLM.Model)
	return NewEinoCompleterWithModel(chatModel), nil
}

// NewEinoCompleterWithModel 使用已有的 ChatModel
func NewEinoCompleterWithModel(chatModel model.BaseChatModel) *EinoCompleter {
	return &EinoCompleter{chatModel: chatModel}
}

func (e *EinoCompleter) Chat(ctx context.Context, messages []ChatMessage) (string, error) {
	input := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			input = append(input, schema.SystemMessage(msg.Content))
		case "assistant":
			input = append(input, schema.AssistantMessage(msg.Content, nil))
		default:
			input = append(input, schema.UserMessage(msg.Content))
		}
	}

	resp, err := e.chatModel.Generate(ctx, input)
	if err != nil {
		if strings.Contains(err.Error(), "429") {
			return "", fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}
