package llm

import (
	"context"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"
)

// OpenAICompleter 直接使用 go-openai 客户端
type OpenAICompleter struct {
	client *goopenai.Client
	model  string
}

var _ Completer = (*OpenAICompleter)(nil)

// NewOpenAICompleter 创建 go-openai 客户端，baseURL 为空时使用官方地址
func NewOpenAICompleter(baseURL, apiKey, model string) *OpenAICompleter {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = goopenai.GPT4oMini
	}
	return &OpenAICompleter{
		client: goopenai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Complete implements Completer
func (c *OpenAICompleter) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: c.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: system},
			{Role: goopenai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}
