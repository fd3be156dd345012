package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/cluster"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/config"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/embedding"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/gate"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/llm"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/logger"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/metrics"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/model"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/quote"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/scoring"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/storage"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/synth"
)

// Deps 引擎依赖，Recorder 与 Embedder 可为空
type Deps struct {
	Store     storage.FindingStore
	Recorder  storage.RunRecorder
	Completer llm.Completer
	Embedder  embedding.Embedder
}

// Engine 主题合成引擎，每次 Run 处理一个租户
type Engine struct {
	cfg         *config.Config
	store       storage.FindingStore
	recorder    storage.RunRecorder
	embedder    embedding.Embedder
	synthesizer synth.Synthesizer
	clusterer   *cluster.Clusterer
	scorer      *scoring.Scorer
	now         func() time.Time
}

// NewEngine 创建引擎实例
func NewEngine(cfg *config.Config, deps Deps) (*Engine, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("finding store is required")
	}
	if deps.Completer == nil {
		return nil, fmt.Errorf("llm completer is required")
	}

	// 初始化限流器，LLM 与向量调用共用
	limit := rate.Limit(float64(cfg.Concurrency.RPM) / 60.0)
	burst := cfg.Concurrency.QPS
	limiter := rate.NewLimiter(limit, burst)

	var embedder embedding.Embedder
	if deps.Embedder != nil {
		embedder = embedding.WithLimiter(deps.Embedder, limiter)
	}

	return &Engine{
		cfg:         cfg,
		store:       deps.Store,
		recorder:    deps.Recorder,
		embedder:    embedder,
		synthesizer: synth.New(cfg.Synthesis, deps.Completer, limiter),
		clusterer:   cluster.NewClusterer(cluster.Options{Config: cfg.Clustering, Alerts: cfg.Synthesis.Alerts}),
		scorer:      scoring.NewScorer(cfg.Scoring),
		now:         time.Now,
	}, nil
}

// run 单次运行内只读共享的组件
type run struct {
	id       string
	tenantID string
	log      *logrus.Entry
	index    model.Index
	matcher  *quote.Matcher
	quality  *gate.QualityGate
	scorer   *scoring.Scorer
}

// clusterResult 单个聚类在 worker 内的处理结果，由调度方汇总
type clusterResult struct {
	clusterID   string
	unavailable bool
	synthesized bool
	lenient     bool
	rejected    model.Reason
	persisted   model.Kind
	persistErr  bool
}

// Run 对一个租户执行完整的合成流程并返回运行汇总。
// 仅在无法读取发现或所有聚类的 LLM 调用都失败时返回错误，此时汇总状态为 failed。
func (e *Engine) Run(ctx context.Context, tenantID string) (*model.RunSummary, error) {
	r := &run{id: uuid.NewString(), tenantID: tenantID}
	r.log = logger.ForRun(tenantID, r.id)
	summary := model.NewRunSummary(r.id, tenantID)
	summary.StartedAt = e.now()
	r.log.Info("开始主题合成")

	// 1. 读取发现
	findings, err := e.store.GetFindings(ctx, tenantID)
	if err != nil {
		err = fmt.Errorf("get findings for tenant %s: %w", tenantID, err)
		return e.finish(ctx, r, summary, err), err
	}
	summary.FindingsProcessed = len(findings)
	if len(findings) == 0 {
		r.log.Warn("租户没有任何发现，本次运行无产出")
		return e.finish(ctx, r, summary, nil), nil
	}

	// 2. 聚类并过跨实体校验门，全部完成后才开始合成
	clusters := e.clusterer.Cluster(findings)
	summary.ClustersFormed = len(clusters)
	entityGate := gate.NewEntityGate(e.cfg.Gate, findings)
	summary.EntitylessMode = entityGate.CountOnly()

	var accepted []*model.Cluster
	for _, c := range clusters {
		c.Confidence = e.scorer.ClusterConfidence(c)
		clog := r.log.WithFields(logrus.Fields{"cluster_id": c.ID, "confidence": fmt.Sprintf("%.2f", c.Confidence)})
		v := entityGate.Validate(c)
		if !v.Accepted {
			summary.ClustersRejected[v.Reason]++
			clog.Infof("聚类被拒绝: %s (%s)", v.Reason, v.Detail)
			continue
		}
		clog.Debugf("聚类通过跨实体校验 (%d 条发现)", len(c.Members))
		accepted = append(accepted, c)
	}
	r.log.Infof("形成 %d 个聚类，%d 个通过跨实体校验", len(clusters), len(accepted))
	if len(accepted) == 0 {
		return e.finish(ctx, r, summary, nil), nil
	}

	// 3. 预先计算向量缓存，之后只读
	var cache *embedding.Cache
	if e.embedder != nil {
		cache = embedding.BuildCache(ctx, e.embedder, findings, e.cfg.Embedding.BatchSize, e.cfg.Concurrency.Workers)
		r.log.Infof("向量缓存完成: %d/%d 条发现", cache.Len(), len(findings))
	}
	r.index = model.NewIndex(findings)
	r.matcher = quote.NewMatcher(e.cfg.Quote, findings, e.embedder, cache, e.cfg.Gate.MinEntities)
	r.quality = gate.NewQualityGate(e.cfg.Scoring, entityGate.CountOnly())
	r.scorer = e.scorer
	if entityGate.CountOnly() {
		r.scorer = e.scorer.CountOnly()
	}

	// 4. 有界 worker 池并发合成，每个 worker 只写自己的结果槽位
	results := make([]clusterResult, len(accepted))
	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency.Workers)
	for i, c := range accepted {
		i, c := i, c
		g.Go(func() error {
			results[i] = e.process(ctx, r, c)
			return nil
		})
	}
	_ = g.Wait()

	// 5. 汇总
	attempted, unavailable := fold(summary, results)
	if attempted > 0 && unavailable == attempted {
		err = fmt.Errorf("all %d synthesis attempts failed: %w", attempted, synth.ErrLLMUnavailable)
		return e.finish(ctx, r, summary, err), err
	}
	return e.finish(ctx, r, summary, nil), nil
}

// process 单个聚类：合成 -> 引用匹配 -> 评分 -> 质量门 -> 持久化
func (e *Engine) process(ctx context.Context, r *run, c *model.Cluster) clusterResult {
	log := r.log.WithField("cluster_id", c.ID)
	res := clusterResult{clusterID: c.ID}

	out := e.synthesizer.Synthesize(ctx, c)
	res.lenient = out.Lenient
	if out.Draft == nil {
		res.unavailable = out.Unavailable()
		res.rejected = out.Reason
		log.Warnf("主题合成失败: %s (%s)", out.Reason, out.Detail)
		return res
	}
	res.synthesized = true
	d := out.Draft

	tier, err := r.matcher.AttachQuotes(ctx, d)
	if err != nil {
		log.Warnf("引用匹配失败，继续使用已有证据: %v", err)
	}

	supporting, _ := r.index.Resolve(d.SupportingFindingIDs)
	d.Score, d.Strength = r.scorer.ThemeScore(d, supporting)

	v := r.quality.Check(d, r.index)
	if !v.Accepted {
		res.rejected = v.Reason
		log.Infof("主题未通过质量门: %s (%s)", v.Reason, v.Detail)
		return res
	}

	rec := d.ToRecord(uuid.NewString(), model.Metadata{
		RunID:         r.id,
		GeneratedAt:   e.now().UTC(),
		RunVersionTag: e.cfg.Run.VersionTag,
	})
	if err := e.store.SaveTheme(ctx, r.tenantID, rec); err != nil {
		res.persistErr = true
		log.Errorf("保存%s失败 [%s]: %v", rec.RecordKind(), rec.RecordID(), err)
		return res
	}
	res.persisted = rec.RecordKind()
	log.WithFields(logrus.Fields{
		"record_id": rec.RecordID(),
		"strength":  d.Strength,
		"quotes":    tier,
	}).Infof("已保存%s: %s", rec.RecordKind(), d.Title)
	return res
}

// fold 汇总 worker 结果，返回尝试合成数与 LLM 不可用数
func fold(s *model.RunSummary, results []clusterResult) (attempted, unavailable int) {
	for _, res := range results {
		attempted++
		if res.unavailable {
			unavailable++
		}
		if res.lenient {
			s.LenientDecodes++
		}
		if res.synthesized {
			s.ThemesSynthesized++
		}
		if res.rejected != "" {
			s.ThemesRejected[res.rejected]++
		}
		if res.persistErr {
			s.PersistFailures++
		}
		switch res.persisted {
		case model.KindTheme:
			s.ThemesPersisted++
		case model.KindAlert:
			s.AlertsPersisted++
		}
	}
	return attempted, unavailable
}

// finish 结束运行：写运行记录、上报指标、打印汇总
func (e *Engine) finish(ctx context.Context, r *run, s *model.RunSummary, runErr error) *model.RunSummary {
	s.FinishedAt = e.now()
	if runErr != nil {
		s.Status = model.RunFailed
		s.Error = runErr.Error()
		r.log.Errorf("运行失败: %v", runErr)
	}

	if e.recorder != nil {
		// 运行被取消时仍尽量写入运行记录
		recCtx := ctx
		if ctx.Err() != nil {
			var cancel context.CancelFunc
			recCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
		}
		if err := e.recorder.RecordRun(recCtx, s); err != nil {
			r.log.Errorf("保存运行记录失败: %v", err)
		}
	}
	metrics.ObserveRun(s)

	r.log.WithFields(logrus.Fields{
		"status":             s.Status,
		"findings":           s.FindingsProcessed,
		"clusters_formed":    s.ClustersFormed,
		"clusters_rejected":  s.ClustersRejected,
		"themes_synthesized": s.ThemesSynthesized,
		"themes_rejected":    s.ThemesRejected,
		"themes_persisted":   s.ThemesPersisted,
		"alerts_persisted":   s.AlertsPersisted,
		"persist_failures":   s.PersistFailures,
		"lenient_decodes":    s.LenientDecodes,
	}).Info("主题合成结束")
	return s
}
