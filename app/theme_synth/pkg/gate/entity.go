package gate

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/config"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/logger"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/model"
)

// Verdict 校验结果
type Verdict struct {
	Accepted bool
	Reason   model.Reason
	Detail   string
}

func accept() Verdict { return Verdict{Accepted: true} }

func reject(reason model.Reason, format string, args ...any) Verdict {
	return Verdict{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// escalationMinEntities 升级聚类的实体下限
const escalationMinEntities = 2

// EntityGate 跨实体校验门
type EntityGate struct {
	cfg       config.GateConfig
	countOnly bool
	log       *logrus.Entry
}

// NewEntityGate 为一次运行创建跨实体校验门，根据发现集合决定是否进入仅计数模式
func NewEntityGate(cfg config.GateConfig, findings []*model.Finding) *EntityGate {
	g := &EntityGate{
		cfg: cfg,
		log: logger.Log.WithField("component", "entity_gate"),
	}
	if HasEntityData(findings) {
		return g
	}
	if cfg.AllowEntityless {
		g.countOnly = true
		g.log.Warn("租户无任何实体数据，跨实体校验降级为仅按发现数量校验 (>=2)")
	} else {
		g.log.Warn("租户无任何实体数据且未开启 allow_entityless，所有多实体聚类都将被拒绝")
	}
	return g
}

// HasEntityData 判断发现集合中是否存在任何实体信息
func HasEntityData(findings []*model.Finding) bool {
	for _, f := range findings {
		if f.Entity() != "" {
			return true
		}
	}
	return false
}

// CountOnly 是否处于仅计数模式
func (g *EntityGate) CountOnly() bool {
	return g.countOnly
}

// MinEntities 不同来源聚类的实体下限
func (g *EntityGate) MinEntities(origin model.Origin) int {
	switch origin {
	case model.OriginCrossCategory:
		return g.cfg.CrossCategoryMinEntities()
	case model.OriginEscalation:
		return escalationMinEntities
	case model.OriginAlert:
		return 1
	default:
		return g.cfg.MinEntities
	}
}

// Validate 校验聚类是否代表多来源模式
func (g *EntityGate) Validate(c *model.Cluster) Verdict {
	if g.countOnly && c.Origin != model.OriginAlert {
		if len(c.Members) < 2 {
			return reject(model.ReasonInsufficientEntities, "count-only mode: %d finding(s) < 2", len(c.Members))
		}
		return accept()
	}

	want := g.MinEntities(c.Origin)
	if got := len(c.Entities()); got < want {
		return reject(model.ReasonInsufficientEntities, "%d distinct entities < %d required for %s cluster", got, want, c.Origin)
	}
	return accept()
}
