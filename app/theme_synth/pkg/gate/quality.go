package gate

import (
	"strings"

	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/config"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/model"
)

// 持久化记录的实体下限：主题需跨实体，告警只需单一实体
const (
	themeMinEntities = 2
	alertMinEntities = 1
)

// QualityGate 持久化前的最终接受/拒绝过滤器
type QualityGate struct {
	cfg       config.ScoringConfig
	countOnly bool
}

// NewQualityGate 创建质量门；countOnly 与跨实体校验门的降级模式保持一致
func NewQualityGate(cfg config.ScoringConfig, countOnly bool) *QualityGate {
	return &QualityGate{cfg: cfg, countOnly: countOnly}
}

// Check 校验已匹配引用并完成评分的草稿，结果与主题到达顺序无关
func (q *QualityGate) Check(d *model.ThemeDraft, idx model.Index) Verdict {
	if strings.TrimSpace(d.Title) == "" || strings.TrimSpace(d.Statement) == "" {
		return reject(model.ReasonMalformedOutput, "empty title or statement")
	}
	switch d.Classification {
	case model.ClassThreat, model.ClassVulnerability, model.ClassOpportunity, model.ClassAdvantage:
	default:
		return reject(model.ReasonMalformedOutput, "unknown classification %q", d.Classification)
	}

	if len(d.SupportingFindingIDs) == 0 {
		return reject(model.ReasonInvalidReference, "no supporting finding ids")
	}
	if _, missing := idx.Resolve(d.SupportingFindingIDs); len(missing) > 0 {
		return reject(model.ReasonInvalidReference, "unknown finding ids %v", missing)
	}

	if v := q.checkEntities(d); !v.Accepted {
		return v
	}

	if d.Score < q.cfg.ModerateThreshold {
		return reject(model.ReasonLowEvidence, "evidence score %d < %d", d.Score, q.cfg.ModerateThreshold)
	}
	return accept()
}

func (q *QualityGate) checkEntities(d *model.ThemeDraft) Verdict {
	if d.Kind == model.KindAlert {
		if len(d.EntityIDs) < alertMinEntities {
			return reject(model.ReasonInsufficientEntities, "alert has no entity")
		}
		return accept()
	}
	if q.countOnly {
		if len(d.SupportingFindingIDs) < 2 {
			return reject(model.ReasonInsufficientEntities, "count-only mode: %d supporting finding(s) < 2", len(d.SupportingFindingIDs))
		}
		return accept()
	}
	if len(d.EntityIDs) < themeMinEntities {
		return reject(model.ReasonInsufficientEntities, "%d entities < %d (cross_entity_validated=%t)",
			len(d.EntityIDs), themeMinEntities, d.CrossEntityValidated)
	}
	return accept()
}
