package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// EinoCompleter 基于 eino OpenAI 兼容 ChatModel 的实现
type EinoCompleter struct {
	chatModel model.BaseChatModel
}

var _ Completer = (*EinoCompleter)(nil)

// NewEinoCompleter 初始化 eino ChatModel
func NewEinoCompleter(ctx context.Context, baseURL, apiKey, modelName string, timeout time.Duration) (*EinoCompleter, error) {
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   modelName,
		Timeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("eino chat model 初始化失败: %w", err)
	}
	return &EinoCompleter{chatModel: cm}, nil
}

// Complete implements Completer
func (c *EinoCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.chatModel.Generate(ctx, []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(user),
	})
	if err != nil {
		return "", err
	}
	if resp == nil || resp.Content == "" {
		return "", ErrEmptyResponse
	}
	return resp.Content, nil
}
