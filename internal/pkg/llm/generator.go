package llm

import (
	"context"
	"errors"

	"github.com/weibaohui/insurebot/config"
	"k8s.io/klog/v2"
)

const (
	RateLimitedReply = "⚠️ Sorry, the assistant is receiving too many requests right now. Please try again in a minute."
	FailureReply     = "⚠️ Sorry, I couldn't generate a response right now. Please try again later."
)

// Generator 面向业务的文本生成，失败时返回致歉文案而不是错误
type Generator struct {
	completer ChatCompleter
}

func NewGenerator(completer ChatCompleter) *Generator {
	return &Generator{completer: completer}
}

// NewGeneratorFromConfig 按 llm.provider 选择后端
func NewGeneratorFromConfig(ctx context.Context, cfg *config.Config) (*Generator, error) {
	switch cfg.LLM.Provider {
	case "eino":
		completer, err := NewEinoCompleter(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewGenerator(completer), nil
	default:
		return NewGenerator(NewClient(cfg)), nil
	}
}

// Generate 以 systemContext 为系统提示生成回答
func (g *Generator) Generate(ctx context.Context, prompt, systemContext string) string {
	messages := make([]ChatMessage, 0, 2)
	if systemContext != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: systemContext})
	}
	messages = append(messages, ChatMessage{Role: "user", Content: prompt})

	answer, err := g.completer.Chat(ctx, messages)
	if err != nil {
		if errors.Is(err, ErrRateLimited) {
			klog.Warningf("LLM 限流: %v", err)
			return RateLimitedReply
		}
		klog.Errorf("LLM 生成失败: %v", err)
		return FailureReply
	}
	if answer == "" {
		return FailureReply
	}
	return answer
}
