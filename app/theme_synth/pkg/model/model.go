package model

import (
	"sort"
	"strings"
	"time"
)

// Finding 上游抽取的原子发现，只读
type Finding struct {
	ID               string  `json:"finding_id"`
	Statement        string  `json:"statement"`
	EntityID         string  `json:"entity_id,omitempty"`
	Category         string  `json:"category,omitempty"`
	PrimaryQuote     string  `json:"primary_quote,omitempty"`
	SecondaryQuote   string  `json:"secondary_quote,omitempty"`
	EvidenceStrength float64 `json:"evidence_strength"`
	Priority         bool    `json:"priority,omitempty"`
}

// Text 用于相似度计算的拼接文本
func (f *Finding) Text() string {
	parts := make([]string, 0, 3)
	for _, s := range []string{f.Statement, f.PrimaryQuote, f.SecondaryQuote} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// Entity 返回规范化的实体 ID，缺失或占位值返回空串
func (f *Finding) Entity() string {
	e := strings.TrimSpace(f.EntityID)
	switch strings.ToLower(e) {
	case "", "unknown", "n/a", "none", "null":
		return ""
	}
	return e
}

// Origin 聚类来源
type Origin string

const (
	OriginCategory      Origin = "category"
	OriginCrossCategory Origin = "cross_category"
	OriginEscalation    Origin = "escalation"
	OriginAlert         Origin = "alert"
)

// 合成类别标记
const (
	CrossCategoryLabel = "cross-category"
	EscalationLabel    = "priority-escalation"
	AlertLabel         = "priority-alert"
)

// Cluster 单次运行内的临时聚类，只持有发现的引用
type Cluster struct {
	ID         string
	Category   string
	Origin     Origin
	Members    []*Finding
	Confidence float64
}

// Entities 成员的去重实体集合，按字典序
func (c *Cluster) Entities() []string {
	return EntitySet(c.Members)
}

// Categories 成员的去重类别集合，按字典序
func (c *Cluster) Categories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range c.Members {
		if f.Category != "" && !seen[f.Category] {
			seen[f.Category] = true
			out = append(out, f.Category)
		}
	}
	sort.Strings(out)
	return out
}

// MemberIDs 成员的发现 ID
func (c *Cluster) MemberIDs() []string {
	ids := make([]string, len(c.Members))
	for i, f := range c.Members {
		ids[i] = f.ID
	}
	return ids
}

// Kind 由聚类产生的记录类型
func (c *Cluster) Kind() Kind {
	if c.Origin == OriginAlert {
		return KindAlert
	}
	return KindTheme
}

// EntitySet 计算一组发现的去重实体
func EntitySet(findings []*Finding) []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range findings {
		if e := f.Entity(); e != "" && !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	sort.Strings(out)
	return out
}

// Kind 记录类型
type Kind string

const (
	KindTheme Kind = "theme"
	KindAlert Kind = "alert"
)

// Classification 主题分类标签
type Classification string

const (
	ClassThreat        Classification = "threat"
	ClassVulnerability Classification = "vulnerability"
	ClassOpportunity   Classification = "opportunity"
	ClassAdvantage     Classification = "advantage"
)

// Strength 证据强度等级
type Strength string

const (
	StrengthStrong   Strength = "Strong"
	StrengthModerate Strength = "Moderate"
	StrengthWeak     Strength = "Weak"
)

// ThemeDraft 合成中的主题草稿，由单个 worker 独占直到质量门读取
type ThemeDraft struct {
	ClusterID            string
	Kind                 Kind
	Title                string
	Statement            string
	Classification       Classification
	SupportingFindingIDs []string
	// QuoteSourceIDs 多步合成中 LLM 选定的引用来源，优先于关键词匹配
	QuoteSourceIDs       []string
	EntityIDs            []string
	PrimaryQuote         string
	SecondaryQuote       string
	CrossEntityValidated bool
	Score                int
	Strength             Strength
}

// Reason 拒绝原因
type Reason string

const (
	ReasonInsufficientEntities Reason = "insufficient cross-entity evidence"
	ReasonLowEvidence          Reason = "evidence score below threshold"
	ReasonInvalidReference     Reason = "invalid finding reference"
	ReasonMalformedOutput      Reason = "malformed synthesis output"
	ReasonSynthesisUnavailable Reason = "synthesis unavailable"
)

// Metadata 持久化时附带的运行元数据
type Metadata struct {
	RunID         string    `json:"run_id"`
	GeneratedAt   time.Time `json:"generated_at"`
	RunVersionTag string    `json:"run_version_tag"`
}

// Record 持久化记录的封闭和类型：*Theme 或 *Alert
type Record interface {
	RecordID() string
	RecordKind() Kind
	isRecord()
}

// Theme 多实体主题
type Theme struct {
	ID                   string         `json:"theme_id"`
	Title                string         `json:"title"`
	Statement            string         `json:"statement"`
	Classification       Classification `json:"classification"`
	SupportingFindingIDs []string       `json:"supporting_finding_ids"`
	EntityIDs            []string       `json:"entity_ids"`
	PrimaryQuote         string         `json:"primary_quote,omitempty"`
	SecondaryQuote       string         `json:"secondary_quote,omitempty"`
	Strength             Strength       `json:"evidence_strength"`
	Score                int            `json:"evidence_score"`
	CrossEntityValidated bool           `json:"cross_entity_validated"`
	Metadata
}

func (t *Theme) RecordID() string { return t.ID }
func (t *Theme) RecordKind() Kind { return KindTheme }
func (*Theme) isRecord()          {}

// Alert 单实体高优先级告警
type Alert struct {
	ID                   string         `json:"alert_id"`
	Title                string         `json:"title"`
	Statement            string         `json:"statement"`
	Classification       Classification `json:"classification"`
	SupportingFindingIDs []string       `json:"supporting_finding_ids"`
	EntityID             string         `json:"entity_id"`
	Quote                string         `json:"quote,omitempty"`
	Strength             Strength       `json:"evidence_strength"`
	Score                int            `json:"evidence_score"`
	Metadata
}

func (a *Alert) RecordID() string { return a.ID }
func (a *Alert) RecordKind() Kind { return KindAlert }
func (*Alert) isRecord()          {}

// ToRecord 将通过质量门的草稿固化为持久化记录
func (d *ThemeDraft) ToRecord(id string, meta Metadata) Record {
	if d.Kind == KindAlert {
		var entity string
		if len(d.EntityIDs) > 0 {
			entity = d.EntityIDs[0]
		}
		return &Alert{
			ID:                   id,
			Title:                d.Title,
			Statement:            d.Statement,
			Classification:       d.Classification,
			SupportingFindingIDs: append([]string(nil), d.SupportingFindingIDs...),
			EntityID:             entity,
			Quote:                d.PrimaryQuote,
			Strength:             d.Strength,
			Score:                d.Score,
			Metadata:             meta,
		}
	}
	return &Theme{
		ID:                   id,
		Title:                d.Title,
		Statement:            d.Statement,
		Classification:       d.Classification,
		SupportingFindingIDs: append([]string(nil), d.SupportingFindingIDs...),
		EntityIDs:            append([]string(nil), d.EntityIDs...),
		PrimaryQuote:         d.PrimaryQuote,
		SecondaryQuote:       d.SecondaryQuote,
		Strength:             d.Strength,
		Score:                d.Score,
		CrossEntityValidated: d.CrossEntityValidated,
		Metadata:             meta,
	}
}

// Index 按 ID 索引的发现集合
type Index map[string]*Finding

// NewIndex 构建发现索引
func NewIndex(findings []*Finding) Index {
	idx := make(Index, len(findings))
	for _, f := range findings {
		idx[f.ID] = f
	}
	return idx
}

// Resolve 解析 ID 列表，返回找到的发现与缺失的 ID
func (idx Index) Resolve(ids []string) (found []*Finding, missing []string) {
	for _, id := range ids {
		if f, ok := idx[id]; ok {
			found = append(found, f)
		} else {
			missing = append(missing, id)
		}
	}
	return found, missing
}

// RunStatus 运行状态
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// RunSummary 每次运行的汇总，用于区分零产出与失败
type RunSummary struct {
	RunID             string         `json:"run_id"`
	TenantID          string         `json:"tenant_id"`
	Status            RunStatus      `json:"status"`
	Error             string         `json:"error,omitempty"`
	StartedAt         time.Time      `json:"started_at"`
	FinishedAt        time.Time      `json:"finished_at"`
	FindingsProcessed int            `json:"findings_processed"`
	ClustersFormed    int            `json:"clusters_formed"`
	ClustersRejected  map[Reason]int `json:"clusters_rejected"`
	ThemesSynthesized int            `json:"themes_synthesized"`
	ThemesRejected    map[Reason]int `json:"themes_rejected"`
	ThemesPersisted   int            `json:"themes_persisted"`
	AlertsPersisted   int            `json:"alerts_persisted"`
	PersistFailures   int            `json:"persist_failures"`
	LenientDecodes    int            `json:"lenient_decodes"`
	EntitylessMode    bool           `json:"entityless_mode"`
}

// NewRunSummary 创建空汇总
func NewRunSummary(runID, tenantID string) *RunSummary {
	return &RunSummary{
		RunID:            runID,
		TenantID:         tenantID,
		Status:           RunSucceeded,
		ClustersRejected: make(map[Reason]int),
		ThemesRejected:   make(map[Reason]int),
	}
}
