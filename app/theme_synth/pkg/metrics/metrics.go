package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/model"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "theme_synth_runs_total",
		Help: "Synthesis runs by final status",
	}, []string{"status"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "theme_synth_run_duration_seconds",
		Help:    "Wall time of a synthesis run",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	clustersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "theme_synth_clusters_total",
		Help: "Clusters by outcome (formed or rejection reason)",
	}, []string{"outcome"})

	themesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "theme_synth_themes_total",
		Help: "Theme drafts by outcome (synthesized, persisted or rejection reason)",
	}, []string{"outcome"})

	alertsPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "theme_synth_alerts_persisted_total",
		Help: "Single-entity alerts persisted",
	})

	lenientDecodes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "theme_synth_lenient_decodes_total",
		Help: "LLM outputs that needed the lenient JSON decoder",
	})

	persistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "theme_synth_persist_failures_total",
		Help: "Records that failed to persist",
	})
)

// ObserveRun 将一次运行的汇总计入指标
func ObserveRun(s *model.RunSummary) {
	runsTotal.WithLabelValues(string(s.Status)).Inc()
	if !s.FinishedAt.IsZero() {
		runDuration.Observe(s.FinishedAt.Sub(s.StartedAt).Seconds())
	}

	clustersTotal.WithLabelValues("formed").Add(float64(s.ClustersFormed))
	for reason, n := range s.ClustersRejected {
		clustersTotal.WithLabelValues(string(reason)).Add(float64(n))
	}

	themesTotal.WithLabelValues("synthesized").Add(float64(s.ThemesSynthesized))
	themesTotal.WithLabelValues("persisted").Add(float64(s.ThemesPersisted))
	for reason, n := range s.ThemesRejected {
		themesTotal.WithLabelValues(string(reason)).Add(float64(n))
	}

	alertsPersisted.Add(float64(s.AlertsPersisted))
	lenientDecodes.Add(float64(s.LenientDecodes))
	persistFailures.Add(float64(s.PersistFailures))
}
