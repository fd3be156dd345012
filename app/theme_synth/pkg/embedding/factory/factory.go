package factory

import (
	"fmt"

	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/config"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/embedding"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/logger"
)

// NewEmbedder 根据配置创建向量实例。
// provider 为 none 时返回 nil，引用匹配只使用关键词层。
// 配置了 cache_path 时外层包一层 badger 持久缓存，返回的 close 负责释放。
func NewEmbedder(cfg *config.Config) (embedding.Embedder, func(), error) {
	c := cfg.Embedding
	var e embedding.Embedder

	switch c.Provider {
	case "none":
		logger.Log.Warn("未配置向量服务，引用匹配将只使用关键词层")
		return nil, func() {}, nil
	case "", "openai":
		apiKey := c.APIKey
		if apiKey == "" {
			apiKey = cfg.LLM.APIKey
		}
		if apiKey == "" {
			return nil, nil, fmt.Errorf("embedding api key is missing")
		}
		e = embedding.NewOpenAIEmbedder(c.BaseURL, apiKey, c.Model)
	case "http":
		if c.BaseURL == "" {
			return nil, nil, fmt.Errorf("embedding base url is missing")
		}
		e = embedding.NewHTTPEmbedder(c.BaseURL, c.Model, c.Timeout)
	default:
		return nil, nil, fmt.Errorf("unknown embedding provider: %s", c.Provider)
	}

	if c.CachePath == "" {
		return e, func() {}, nil
	}
	cache, err := embedding.OpenBadgerCache(c.CachePath)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := cache.Close(); err != nil {
			logger.Log.Errorf("关闭向量缓存失败: %v", err)
		}
	}
	return embedding.WithBadgerCache(e, cache), closeFn, nil
}
