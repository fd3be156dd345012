package embedding

import (
	"context"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// Embedder 批量文本 -> 等长稠密向量，返回顺序与输入一致
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// OpenAIEmbedder 基于 go-openai 的向量服务
type OpenAIEmbedder struct {
	client *goopenai.Client
	model  string
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder 创建 OpenAI 兼容的向量客户端
func NewOpenAIEmbedder(baseURL, apiKey, model string) *OpenAIEmbedder {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = string(goopenai.SmallEmbedding3)
	}
	return &OpenAIEmbedder{client: goopenai.NewClientWithConfig(cfg), model: model}
}

// Model implements Embedder
func (e *OpenAIEmbedder) Model() string { return e.model }

// Embed implements Embedder
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input: texts,
		Model: goopenai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: got %d vectors for %d texts", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("openai embeddings: index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// limited 在每次调用前等待限流器
type limited struct {
	Embedder
	limiter *rate.Limiter
}

// WithLimiter 为 Embedder 加上共享限流
func WithLimiter(e Embedder, limiter *rate.Limiter) Embedder {
	if limiter == nil {
		return e
	}
	return &limited{Embedder: e, limiter: limiter}
}

func (l *limited) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.Embedder.Embed(ctx, texts)
}
