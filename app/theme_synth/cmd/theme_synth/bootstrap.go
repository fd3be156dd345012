package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"

	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/config"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/logger"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/storage"
)

// bootstrap 加载 .env、配置并初始化日志
func bootstrap() (*config.Config, error) {
	if err := godotenv.Load(rootFlags.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("无法加载 %s: %w", rootFlags.envFile, err)
	}

	cfg, err := config.LoadConfig(rootFlags.configPath)
	if err != nil {
		return nil, fmt.Errorf("无法加载配置文件: %w", err)
	}
	if err := logger.InitLogger(cfg.Log.Level, cfg.Log.File); err != nil {
		return nil, fmt.Errorf("无法初始化日志: %w", err)
	}
	return cfg, nil
}

// openStore 打开配置指定的存储后端
func openStore(cfg *config.Config) (storage.Store, error) {
	return storage.Open(cfg)
}
