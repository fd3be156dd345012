package service

import (
	"context"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"

	"github.com/iWorld-y/theme_synth/app/theme_api/internal/domain"
	"github.com/iWorld-y/theme_synth/app/theme_api/internal/usecase"
)

// ListThemesReply 主题列表响应
type ListThemesReply struct {
	TenantID string                 `json:"tenant_id"`
	Themes   []*domain.ThemeSummary `json:"themes"`
	Total    int                    `json:"total"`
}

type ThemeService struct {
	uc  *usecase.ThemeUseCase
	log *log.Helper
}

func NewThemeService(uc *usecase.ThemeUseCase, logger log.Logger) *ThemeService {
	return &ThemeService{
		uc:  uc,
		log: log.NewHelper(logger),
	}
}

// TriggerRun POST /api/v1/tenants/{tenant}/runs
func (s *ThemeService) TriggerRun(ctx http.Context) error {
	tenant := ctx.Vars().Get("tenant")
	h := ctx.Middleware(func(c context.Context, req any) (any, error) {
		return s.uc.Run(c, req.(string))
	})
	out, err := h(ctx, tenant)
	if err != nil {
		return err
	}
	return ctx.Result(200, out)
}

// ListThemes GET /api/v1/tenants/{tenant}/themes
func (s *ThemeService) ListThemes(ctx http.Context) error {
	tenant := ctx.Vars().Get("tenant")
	h := ctx.Middleware(func(c context.Context, req any) (any, error) {
		themes, err := s.uc.List(c, req.(string))
		if err != nil {
			return nil, err
		}
		return &ListThemesReply{TenantID: req.(string), Themes: themes, Total: len(themes)}, nil
	})
	out, err := h(ctx, tenant)
	if err != nil {
		return err
	}
	return ctx.Result(200, out)
}
