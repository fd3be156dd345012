package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

// LangChainCompleter 基于 langchaingo 的实现
type LangChainCompleter struct {
	llm llms.Model
}

var _ Completer = (*LangChainCompleter)(nil)

// NewLangChainCompleter 初始化 langchaingo OpenAI 客户端
func NewLangChainCompleter(baseURL, apiKey, model string) (*LangChainCompleter, error) {
	opts := []openai.Option{openai.WithToken(apiKey)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	if model != "" {
		opts = append(opts, openai.WithModel(model))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("langchaingo 初始化失败: %w", err)
	}
	return &LangChainCompleter{llm: client}, nil
}

// Complete implements Completer
func (c *LangChainCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.llm.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, system),
		llms.TextParts(schema.ChatMessageTypeHuman, user),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Content, nil
}
