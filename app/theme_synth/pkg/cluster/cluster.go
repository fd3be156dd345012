package cluster

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/config"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/logger"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/model"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/textsim"
)

// Uncategorized 空类别发现所归入的分区
const Uncategorized = "uncategorized"

// Partition 单个类别分区
type Partition struct {
	Category string
	Findings []*model.Finding
}

// PartitionByCategory 按类别分组，分区按类别名排序，组内保持输入顺序
func PartitionByCategory(findings []*model.Finding) []Partition {
	groups := make(map[string][]*model.Finding)
	for _, f := range findings {
		cat := categoryOf(f)
		groups[cat] = append(groups[cat], f)
	}
	cats := make([]string, 0, len(groups))
	for c := range groups {
		cats = append(cats, c)
	}
	sort.Strings(cats)

	out := make([]Partition, 0, len(cats))
	for _, c := range cats {
		out = append(out, Partition{Category: c, Findings: groups[c]})
	}
	return out
}

func categoryOf(f *model.Finding) string {
	if c := strings.TrimSpace(f.Category); c != "" {
		return c
	}
	return Uncategorized
}

// Options 聚类器选项
type Options struct {
	Config config.ClusteringConfig
	// Alerts 为 true 时，无法升级的优先发现生成单实体告警聚类
	Alerts bool
}

// Clusterer 类别分区 + 语义聚类
type Clusterer struct {
	cfg    config.ClusteringConfig
	alerts bool
	log    *logrus.Entry
}

// NewClusterer 创建聚类器
func NewClusterer(opts Options) *Clusterer {
	return &Clusterer{
		cfg:    opts.Config,
		alerts: opts.Alerts,
		log:    logger.Log.WithField("component", "cluster"),
	}
}

// Cluster 对发现集合执行完整的聚类流程：类别内聚类、跨类别聚类、优先发现升级。
// 输入先按 finding ID 排序，聚类 ID 按类别顺序确定性分配。
func (c *Clusterer) Cluster(findings []*model.Finding) []*model.Cluster {
	sorted := make([]*model.Finding, len(findings))
	copy(sorted, findings)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var clusters []*model.Cluster
	seen := make(map[string]bool)
	add := func(category string, origin model.Origin, members []*model.Finding) {
		key := memberKey(members)
		if seen[key] {
			return
		}
		seen[key] = true
		clusters = append(clusters, &model.Cluster{
			ID:       fmt.Sprintf("C%03d", len(clusters)+1),
			Category: category,
			Origin:   origin,
			Members:  members,
		})
	}

	// 1. 类别内聚类
	for _, p := range PartitionByCategory(sorted) {
		if len(p.Findings) < c.cfg.MinClusterSize {
			continue
		}
		for _, members := range c.semanticGroups(p.Findings, p.Category) {
			add(p.Category, model.OriginCategory, members)
		}
	}

	// 2. 全集跨类别聚类，仅保留跨越至少两个类别的簇
	if c.cfg.CrossCategory && len(sorted) >= c.cfg.MinClusterSize {
		for _, members := range c.semanticGroups(sorted, model.CrossCategoryLabel) {
			if distinctCategories(members) >= 2 {
				add(model.CrossCategoryLabel, model.OriginCrossCategory, members)
			}
		}
	}

	// 3. 未入簇的优先发现升级
	assigned := make(map[string]bool)
	for _, cl := range clusters {
		for _, f := range cl.Members {
			assigned[f.ID] = true
		}
	}
	for _, f := range sorted {
		if !f.Priority || assigned[f.ID] {
			continue
		}
		related := c.related(f, sorted)
		var members []*model.Finding
		switch {
		case len(related) >= 2 && len(model.EntitySet(related)) >= 2:
			members = related
			c.log.WithField("finding", f.ID).Infof("优先发现升级为独立聚类 (%d 条相关发现)", len(related))
			add(model.EscalationLabel, model.OriginEscalation, members)
		case c.alerts && f.Entity() != "":
			members = sameEntity(related, f.Entity())
			c.log.WithField("finding", f.ID).Info("优先发现仅涉及单一实体，生成告警聚类")
			add(model.AlertLabel, model.OriginAlert, members)
		default:
			c.log.WithField("finding", f.ID).Warn("优先发现无法升级，已丢弃")
			continue
		}
		for _, m := range members {
			assigned[m.ID] = true
		}
	}

	return clusters
}

// semanticGroups 对一组发现做 TF-IDF + DBSCAN，返回成员分组。
// 文本退化无法计算相似度时整组作为一个聚类。
func (c *Clusterer) semanticGroups(findings []*model.Finding, label string) [][]*model.Finding {
	docs := make([]string, len(findings))
	for i, f := range findings {
		docs[i] = f.Text()
	}

	vectors, err := textsim.NewVectorizer(c.cfg.MaxFeatures).FitTransform(docs)
	if err != nil {
		if errors.Is(err, textsim.ErrEmptyVocabulary) {
			c.log.WithField("partition", label).Warnf("相似度计算失败 (%v)，整组 %d 条发现回退为单一聚类", err, len(findings))
			return [][]*model.Finding{findings}
		}
		c.log.WithField("partition", label).Errorf("相似度计算失败: %v", err)
		return [][]*model.Finding{findings}
	}

	labels := dbscan(textsim.DistanceMatrix(vectors), c.cfg.DistanceThreshold, c.cfg.MinClusterSize)
	var out [][]*model.Finding
	for _, idx := range groupLabels(labels) {
		members := make([]*model.Finding, len(idx))
		for k, i := range idx {
			members[k] = findings[i]
		}
		out = append(out, members)
	}
	return out
}

// related 返回与 f 共享足够多长词的发现（含 f 自身），保持输入顺序
func (c *Clusterer) related(f *model.Finding, all []*model.Finding) []*model.Finding {
	terms := c.salientTerms(f)
	var out []*model.Finding
	for _, other := range all {
		if other.ID == f.ID {
			out = append(out, other)
			continue
		}
		shared := 0
		for t := range c.salientTerms(other) {
			if terms[t] {
				shared++
			}
		}
		if shared >= c.cfg.MinSharedTerms {
			out = append(out, other)
		}
	}
	return out
}

func (c *Clusterer) salientTerms(f *model.Finding) map[string]bool {
	out := make(map[string]bool)
	for _, t := range textsim.Tokenize(f.Text()) {
		if len([]rune(t)) > c.cfg.MinTermLength {
			out[t] = true
		}
	}
	return out
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

func distinctCategories(members []*model.Finding) int {
	seen := make(map[string]bool)
	for _, f := range members {
		seen[categoryOf(f)] = true
	}
	return len(seen)
}

func memberKey(members []*model.Finding) string {
	ids := make([]string, len(members))
	for i, f := range members {
		ids[i] = f.ID
	}
	sort.Strings(ids)
	return strings.Join(ids, "\x00")
}
