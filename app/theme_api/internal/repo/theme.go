package repo

import (
	"context"

	"github.com/iWorld-y/theme_synth/app/theme_api/internal/domain"
)

// ThemeRepo 主题仓库接口
type ThemeRepo interface {
	// Synthesize 为租户执行一次同步合成
	Synthesize(ctx context.Context, tenantID string) *domain.RunResult
	// ListThemes 列出租户已持久化的主题与告警
	ListThemes(ctx context.Context, tenantID string) ([]*domain.ThemeSummary, error)
}
