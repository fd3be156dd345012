package factory

import (
	"context"
	"fmt"

	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/config"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/llm"
)

// NewCompleter 根据配置创建 LLM 实例
func NewCompleter(ctx context.Context, cfg *config.Config) (llm.Completer, error) {
	c := cfg.LLM
	if c.APIKey == "" {
		return nil, fmt.Errorf("llm api key is missing")
	}

	switch c.Provider {
	case "", "eino":
		return llm.NewEinoCompleter(ctx, c.BaseURL, c.APIKey, c.Model, cfg.Synthesis.CallTimeout())
	case "openai":
		return llm.NewOpenAICompleter(c.BaseURL, c.APIKey, c.Model), nil
	case "langchaingo":
		return llm.NewLangChainCompleter(c.BaseURL, c.APIKey, c.Model)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", c.Provider)
	}
}
