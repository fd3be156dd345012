package domain

import "github.com/iWorld-y/theme_synth/app/theme_synth/pkg/model"

// ThemeSummary 主题或告警的列表项
type ThemeSummary struct {
	ID                   string   `json:"id"`
	Kind                 string   `json:"kind"`
	Title                string   `json:"title"`
	Statement            string   `json:"statement"`
	Classification       string   `json:"classification"`
	Strength             string   `json:"evidence_strength"`
	Score                int      `json:"evidence_score"`
	EntityIDs            []string `json:"entity_ids"`
	SupportingFindingIDs []string `json:"supporting_finding_ids"`
	Quotes               []string `json:"quotes,omitempty"`
	CrossEntityValidated bool     `json:"cross_entity_validated"`
	RunID                string   `json:"run_id"`
	CreatedAt            string   `json:"created_at"`
}

// RunResult 一次合成运行的结果
type RunResult struct {
	Summary *model.RunSummary
	// Err 运行失败原因，Summary 在失败时仍然有效
	Err error
}
