package usecase

import (
	"context"
	"fmt"
	"testing"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"

	"github.com/iWorld-y/theme_synth/app/theme_api/internal/domain"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/model"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/synth"
)

// mockThemeRepo 模拟主题仓库
type mockThemeRepo struct {
	runErr error
	tenant string
}

func (m *mockThemeRepo) Synthesize(ctx context.Context, tenantID string) *domain.RunResult {
	m.tenant = tenantID
	s := model.NewRunSummary("run-1", tenantID)
	if m.runErr != nil {
		s.Status = model.RunFailed
	}
	return &domain.RunResult{Summary: s, Err: m.runErr}
}

func (m *mockThemeRepo) ListThemes(ctx context.Context, tenantID string) ([]*domain.ThemeSummary, error) {
	return []*domain.ThemeSummary{{ID: "t-1", Kind: "theme", Title: "Slow turnaround"}}, nil
}

func TestThemeUseCase_Run(t *testing.T) {
	repo := &mockThemeRepo{}
	uc := NewThemeUseCase(repo, log.DefaultLogger)

	summary, err := uc.Run(context.Background(), " acme ")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if repo.tenant != "acme" {
		t.Errorf("tenant = %q, want acme", repo.tenant)
	}
	if summary.Status != model.RunSucceeded {
		t.Errorf("status = %s", summary.Status)
	}
}

func TestThemeUseCase_RunErrors(t *testing.T) {
	tests := []struct {
		name   string
		tenant string
		runErr error
		code   int
		reason string
	}{
		{"empty tenant", "  ", nil, 400, "INVALID_TENANT"},
		{"llm unavailable", "acme", fmt.Errorf("all failed: %w", synth.ErrLLMUnavailable), 503, "LLM_UNAVAILABLE"},
		{"other", "acme", fmt.Errorf("boom"), 500, "RUN_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := NewThemeUseCase(&mockThemeRepo{runErr: tt.runErr}, log.DefaultLogger)
			_, err := uc.Run(context.Background(), tt.tenant)
			e := kerrors.FromError(err)
			if e == nil || int(e.Code) != tt.code || e.Reason != tt.reason {
				t.Fatalf("Run() error = %v, want %d %s", err, tt.code, tt.reason)
			}
			if tt.runErr != nil && e.Metadata["run_id"] != "run-1" {
				t.Errorf("metadata = %v, want run_id", e.Metadata)
			}
		})
	}
}

func TestThemeUseCase_List(t *testing.T) {
	uc := NewThemeUseCase(&mockThemeRepo{}, log.DefaultLogger)

	themes, err := uc.List(context.Background(), "acme")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(themes) != 1 || themes[0].Title != "Slow turnaround" {
		t.Errorf("List() themes = %v", themes)
	}

	if _, err := uc.List(context.Background(), ""); !kerrors.IsBadRequest(err) {
		t.Errorf("List(\"\") error = %v, want bad request", err)
	}
}
