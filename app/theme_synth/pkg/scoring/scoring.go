package scoring

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/config"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/model"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/textsim"
)

// 聚类置信度各分量上限
const (
	entityWeight     = 0.4
	entitySaturation = 4
	impactWeight     = 0.3
	sizeWeight       = 0.2
	sizeSaturation   = 6
	quoteBonus       = 0.05
)

// MaxThemeScore 主题证据分上限
const MaxThemeScore = 8

// Scorer 证据评分器，纯函数，无状态
type Scorer struct {
	cfg config.ScoringConfig
	// countOnly 租户无实体数据时以支撑发现数代替实体数计算广度分
	countOnly bool
}

// NewScorer 创建评分器
func NewScorer(cfg config.ScoringConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// CountOnly 返回仅计数模式下的评分器副本，与跨实体校验门的降级模式一致
func (s *Scorer) CountOnly() *Scorer {
	return &Scorer{cfg: s.cfg, countOnly: true}
}

// ClusterConfidence 计算聚类置信度，结果在 [0,1]
func (s *Scorer) ClusterConfidence(c *model.Cluster) float64 {
	if len(c.Members) == 0 {
		return 0
	}

	entities := float64(min(len(c.Entities()), entitySaturation)) / entitySaturation
	size := float64(min(len(c.Members), sizeSaturation)) / sizeSaturation

	var sum float64
	var longPrimary, longSecondary bool
	for _, f := range c.Members {
		sum += clamp(f.EvidenceStrength, 0, 10)
		if utf8.RuneCountInString(f.PrimaryQuote) >= s.cfg.LongQuoteChars {
			longPrimary = true
		}
		if utf8.RuneCountInString(f.SecondaryQuote) >= s.cfg.LongQuoteChars {
			longSecondary = true
		}
	}
	mean := sum / float64(len(c.Members))

	score := entityWeight*entities + mean/10*impactWeight + sizeWeight*size
	if longPrimary {
		score += quoteBonus
	}
	if longSecondary {
		score += quoteBonus
	}
	return clamp(score, 0, 1)
}

// ThemeScore 计算主题证据分 [0,8] 及对应等级。
// findings 为主题引用的支撑发现，用于判断陈述是否点名了具体实体。
func (s *Scorer) ThemeScore(d *model.ThemeDraft, findings []*model.Finding) (int, model.Strength) {
	breadth := len(d.EntityIDs)
	if s.countOnly && d.Kind != model.KindAlert {
		breadth = len(d.SupportingFindingIDs)
	}
	score := entityBand(breadth) + s.quotePoints(d) + s.specificity(d, findings)
	score = min(max(score, 0), MaxThemeScore)
	return score, s.Strength(score)
}

// Strength 分数映射为等级
func (s *Scorer) Strength(score int) model.Strength {
	switch {
	case score >= s.cfg.StrongThreshold:
		return model.StrengthStrong
	case score >= s.cfg.ModerateThreshold:
		return model.StrengthModerate
	default:
		return model.StrengthWeak
	}
}

func entityBand(n int) int {
	switch {
	case n >= 4:
		return 3
	case n >= 3:
		return 2
	case n >= 2:
		return 1
	default:
		return 0
	}
}

func (s *Scorer) quotePoints(d *model.ThemeDraft) int {
	points := 0
	if p := strings.TrimSpace(d.PrimaryQuote); p != "" {
		points++
		if utf8.RuneCountInString(p) >= s.cfg.LongQuoteChars {
			points++
		}
	}
	// 告警只持久化一条引用
	if d.Kind != model.KindAlert && strings.TrimSpace(d.SecondaryQuote) != "" {
		points++
	}
	return points
}

func (s *Scorer) specificity(d *model.ThemeDraft, findings []*model.Finding) int {
	points := 0
	if utf8.RuneCountInString(d.Statement) > s.cfg.SpecificChars {
		points++
	}
	if hasDigit(d.Statement) || namesEntity(d.Statement, d.EntityIDs, findings) {
		points++
	}
	return points
}

func namesEntity(statement string, entityIDs []string, findings []*model.Finding) bool {
	lower := strings.ToLower(statement)
	candidates := append([]string(nil), entityIDs...)
	candidates = append(candidates, model.EntitySet(findings)...)
	for _, e := range candidates {
		if e != "" && textsim.ContainsWord(lower, strings.ToLower(e)) {
			return true
		}
	}
	return false
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}
