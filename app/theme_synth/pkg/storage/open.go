package storage

import (
	"fmt"

	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/config"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/logger"
)

// Open 按 store.driver 打开存储后端
func Open(cfg *config.Config) (Store, error) {
	switch cfg.Store.Driver {
	case "file":
		return NewFileStore(cfg.Store.BasePath)
	case "", "postgres":
		s, err := NewPostgres(cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("无法连接数据库: %w", err)
		}
		logger.Log.Info("已成功连接到数据库")
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}
}
