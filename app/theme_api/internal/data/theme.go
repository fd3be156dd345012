package data

import (
	"context"
	"github.com/go-kratos/kratos/v2/log"

	"github.com/iWorld-y/theme_synth/app/theme_api/internal/domain"
	"github.com/iWorld-y/theme_synth/app/theme_api/internal/repo"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/model"
)

type themeRepo struct {
	data *Data
	log  *log.Helper
}

func NewThemeRepo(data *Data, logger log.Logger) repo.ThemeRepo {
	return &themeRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

func (r *themeRepo) Synthesize(ctx context.Context, tenantID string) *domain.RunResult {
	summary, err := r.data.runner.Run(ctx, tenantID)
	if err != nil {
		r.log.WithContext(ctx).Errorf("synthesis run for tenant %s failed: %v", tenantID, err)
	}
	return &domain.RunResult{Summary: summary, Err: err}
}

func (r *themeRepo) ListThemes(ctx context.Context, tenantID string) ([]*domain.ThemeSummary, error) {
	records, err := r.data.records.ListRecords(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	out := make([]*domain.ThemeSummary, 0, len(records))
	for _, rec := range records {
		out = append(out, toSummary(rec))
	}
	return out, nil
}

func toSummary(rec model.Record) *domain.ThemeSummary {
	switch r := rec.(type) {
	case *model.Theme:
		var quotes []string
		for _, q := range []string{r.PrimaryQuote, r.SecondaryQuote} {
			if q != "" {
				quotes = append(quotes, q)
			}
		}
		return &domain.ThemeSummary{
			ID:                   r.ID,
			Kind:                 string(model.KindTheme),
			Title:                r.Title,
			Statement:            r.Statement,
			Classification:       string(r.Classification),
			Strength:             string(r.Strength),
			Score:                r.Score,
			EntityIDs:            r.EntityIDs,
			SupportingFindingIDs: r.SupportingFindingIDs,
			Quotes:               quotes,
			CrossEntityValidated: r.CrossEntityValidated,
			RunID:                r.RunID,
			CreatedAt:            r.GeneratedAt.Format("2006-01-02 15:04:05"),
		}
	case *model.Alert:
		s := &domain.ThemeSummary{
			ID:                   r.ID,
			Kind:                 string(model.KindAlert),
			Title:                r.Title,
			Statement:            r.Statement,
			Classification:       string(r.Classification),
			Strength:             string(r.Strength),
			Score:                r.Score,
			EntityIDs:            []string{r.EntityID},
			SupportingFindingIDs: r.SupportingFindingIDs,
			RunID:                r.RunID,
			CreatedAt:            r.GeneratedAt.Format("2006-01-02 15:04:05"),
		}
		if r.Quote != "" {
			s.Quotes = []string{r.Quote}
		}
		return s
	}
	return &domain.ThemeSummary{ID: rec.RecordID(), Kind: string(rec.RecordKind())}
}
