package usecase

import (
	"context"
	"errors"
	"strings"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"

	"github.com/iWorld-y/theme_synth/app/theme_api/internal/domain"
	"github.com/iWorld-y/theme_synth/app/theme_api/internal/repo"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/model"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/synth"
)

// ThemeUseCase 主题合成业务逻辑
type ThemeUseCase struct {
	repo repo.ThemeRepo
	log  *log.Helper
}

// NewThemeUseCase 创建主题业务逻辑实例
func NewThemeUseCase(repo repo.ThemeRepo, logger log.Logger) *ThemeUseCase {
	return &ThemeUseCase{repo: repo, log: log.NewHelper(logger)}
}

// Run 同步执行一次合成。运行失败时返回带 run_id 元数据的 kratos 错误
func (uc *ThemeUseCase) Run(ctx context.Context, tenantID string) (*model.RunSummary, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, kerrors.BadRequest("INVALID_TENANT", "tenant id is required")
	}

	res := uc.repo.Synthesize(ctx, tenantID)
	if res.Err == nil {
		return res.Summary, nil
	}

	var e *kerrors.Error
	switch {
	case errors.Is(res.Err, synth.ErrLLMUnavailable):
		e = kerrors.ServiceUnavailable("LLM_UNAVAILABLE", "synthesis unavailable for every cluster")
	default:
		e = kerrors.InternalServer("RUN_FAILED", res.Err.Error())
	}
	if res.Summary != nil {
		e = e.WithMetadata(map[string]string{"run_id": res.Summary.RunID})
	}
	return res.Summary, e.WithCause(res.Err)
}

// List 列出租户已持久化的主题与告警
func (uc *ThemeUseCase) List(ctx context.Context, tenantID string) ([]*domain.ThemeSummary, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, kerrors.BadRequest("INVALID_TENANT", "tenant id is required")
	}
	return uc.repo.ListThemes(ctx, tenantID)
}
