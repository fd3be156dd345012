package quote

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/config"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/embedding"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/logger"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/model"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/textsim"
)

// Tier 引用来源层级
type Tier string

const (
	TierNone      Tier = "none"
	TierSelected  Tier = "selected"
	TierKeyword   Tier = "keyword"
	TierEmbedding Tier = "embedding"
)

// Matcher 为主题草稿匹配真实引用与实体。
// 只读共享：发现集合与向量缓存在运行开始前构建完成。
type Matcher struct {
	cfg         config.QuoteConfig
	findings    []*model.Finding
	index       model.Index
	embedder    embedding.Embedder
	cache       *embedding.Cache
	minEntities int
	log         *logrus.Entry
}

// NewMatcher 创建匹配器；embedder 或 cache 为空时跳过向量层
func NewMatcher(cfg config.QuoteConfig, findings []*model.Finding, embedder embedding.Embedder, cache *embedding.Cache, minEntities int) *Matcher {
	sorted := append([]*model.Finding(nil), findings...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return &Matcher{
		cfg:         cfg,
		findings:    sorted,
		index:       model.NewIndex(sorted),
		embedder:    embedder,
		cache:       cache,
		minEntities: minEntities,
		log:         logger.Log.WithField("component", "quote"),
	}
}

// AttachQuotes 填充引用、实体和 cross_entity_validated，返回使用的层级。
// 引用原样取自发现，不做任何改写。
func (m *Matcher) AttachQuotes(ctx context.Context, d *model.ThemeDraft) (Tier, error) {
	tier, matched, err := m.match(ctx, d)
	if d.Kind == model.KindAlert && len(d.EntityIDs) > 0 {
		matched = sameEntity(matched, d.EntityIDs[0])
	}

	d.PrimaryQuote, d.SecondaryQuote = pickQuotes(matched)
	if d.Kind == model.KindAlert {
		d.SecondaryQuote = ""
		d.CrossEntityValidated = false
		return tier, err
	}

	evidence := model.EntitySet(matched)
	d.EntityIDs = union(d.EntityIDs, evidence)
	d.CrossEntityValidated = len(evidence) >= m.minEntities
	if !d.CrossEntityValidated {
		m.log.WithField("cluster_id", d.ClusterID).Debugf("引用证据仅涉及 %d 个实体，标记为未通过跨实体校验", len(evidence))
	}
	return tier, err
}

func (m *Matcher) match(ctx context.Context, d *model.ThemeDraft) (Tier, []*model.Finding, error) {
	selected := d.QuoteSourceIDs
	if len(selected) == 0 && d.Kind == model.KindAlert {
		// 告警优先使用自身优先发现的引用
		selected = d.SupportingFindingIDs
	}
	if len(selected) > 0 {
		found, _ := m.index.Resolve(selected)
		if withQuotes(found) {
			return TierSelected, found, nil
		}
	}

	if found := m.keywordTier(d); len(found) > 0 {
		return TierKeyword, found, nil
	}

	found, err := m.embeddingTier(ctx, d)
	if err != nil {
		return TierNone, nil, err
	}
	if len(found) > 0 {
		return TierEmbedding, found, nil
	}
	return TierNone, nil, nil
}

// Groups 主题文本命中的关键词组
func (m *Matcher) Groups(text string) []config.KeywordGroup {
	lower := strings.ToLower(text)
	var out []config.KeywordGroup
	for _, g := range m.cfg.KeywordGroups {
		if containsAny(lower, g.Keywords) {
			out = append(out, g)
		}
	}
	return out
}

// keywordTier 在全量发现中查找包含命中组关键词的发现，按 evidence_strength 取前 N
func (m *Matcher) keywordTier(d *model.ThemeDraft) []*model.Finding {
	groups := m.Groups(d.Title + " " + d.Statement)
	if len(groups) == 0 {
		return nil
	}
	var keywords []string
	for _, g := range groups {
		keywords = append(keywords, g.Keywords...)
	}

	var out []*model.Finding
	for _, f := range m.findings {
		if containsAny(strings.ToLower(f.Text()), keywords) {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EvidenceStrength > out[j].EvidenceStrength })
	if len(out) > m.cfg.TopN {
		out = out[:m.cfg.TopN]
	}
	return out
}

func (m *Matcher) embeddingTier(ctx context.Context, d *model.ThemeDraft) ([]*model.Finding, error) {
	if m.embedder == nil || m.cache.Len() == 0 {
		return nil, nil
	}
	vectors, err := m.embedder.Embed(ctx, []string{d.Title + ". " + d.Statement})
	if err != nil {
		return nil, fmt.Errorf("embed theme %s: %w", d.ClusterID, err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed theme %s: got %d vectors", d.ClusterID, len(vectors))
	}

	var out []*model.Finding
	for _, hit := range m.cache.Nearest(vectors[0], m.cfg.SimilarityThreshold, m.cfg.TopK) {
		if f, ok := m.index[hit.FindingID]; ok {
			out = append(out, f)
		}
	}
	return out, nil
}

// pickQuotes 依次取每条发现的主、次引用，返回前两条互不相同的非空引用
func pickQuotes(findings []*model.Finding) (string, string) {
	var quotes []string
	for _, f := range findings {
		for _, q := range []string{f.PrimaryQuote, f.SecondaryQuote} {
			if strings.TrimSpace(q) == "" || slices.Contains(quotes, q) {
				continue
			}
			quotes = append(quotes, q)
			if len(quotes) == 2 {
				return quotes[0], quotes[1]
			}
		}
	}
	if len(quotes) == 1 {
		return quotes[0], ""
	}
	return "", ""
}

func withQuotes(findings []*model.Finding) bool {
	for _, f := range findings {
		if strings.TrimSpace(f.PrimaryQuote) != "" || strings.TrimSpace(f.SecondaryQuote) != "" {
			return true
		}
	}
	return false
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if textsim.ContainsWord(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func sameEntity(findings []*model.Finding, entity string) []*model.Finding {
	var out []*model.Finding
	for _, f := range findings {
		if f.Entity() == entity {
			out = append(out, f)
		}
	}
	return out
}

func union(a, b []string) []string {
	out := append([]string(nil), a...)
	for _, s := range b {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
