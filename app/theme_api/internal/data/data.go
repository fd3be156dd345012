package data

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/joho/godotenv"

	"github.com/iWorld-y/theme_synth/app/theme_api/internal/conf"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/config"
	embfactory "github.com/iWorld-y/theme_synth/app/theme_synth/pkg/embedding/factory"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/engine"
	llmfactory "github.com/iWorld-y/theme_synth/app/theme_synth/pkg/llm/factory"
	tsLogger "github.com/iWorld-y/theme_synth/app/theme_synth/pkg/logger"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/model"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/storage"
)

// runner 执行单租户合成
type runner interface {
	Run(ctx context.Context, tenantID string) (*model.RunSummary, error)
}

type Data struct {
	runner  runner
	records storage.RecordLister
}

// NewData 加载 theme_synth 配置并初始化存储、模型客户端与合成引擎
func NewData(c *conf.Engine, logger log.Logger) (*Data, func(), error) {
	helper := log.NewHelper(logger)
	if c == nil || c.ConfigPath == "" {
		return nil, nil, errors.New("engine.config_path is required")
	}
	if c.EnvFile != "" {
		if err := godotenv.Load(c.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("load %s: %w", c.EnvFile, err)
		}
	}

	cfg, err := config.LoadConfig(c.ConfigPath)
	if err != nil {
		return nil, nil, err
	}
	if err := tsLogger.InitLogger(cfg.Log.Level, cfg.Log.File); err != nil {
		helper.Errorf("Failed to init theme_synth logger: %v", err)
		_ = tsLogger.InitLogger("info", "") // 降级处理
	}

	store, err := storage.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	completer, err := llmfactory.NewCompleter(context.Background(), cfg)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	embedder, closeEmbedder, err := embfactory.NewEmbedder(cfg)
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	eng, err := engine.NewEngine(cfg, engine.Deps{
		Store:     store,
		Recorder:  store,
		Completer: completer,
		Embedder:  embedder,
	})
	if err != nil {
		closeEmbedder()
		store.Close()
		return nil, nil, err
	}

	cleanup := func() {
		helper.Info("closing the data resources")
		closeEmbedder()
		if err := store.Close(); err != nil {
			helper.Errorf("close store: %v", err)
		}
	}
	return &Data{runner: eng, records: store}, cleanup, nil
}
