package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "mdsite"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once           sync.Once
	phaseDuration  *prom.HistogramVec
	buildDuration  *prom.HistogramVec
	buildOutcome   *prom.CounterVec
	artifacts      *prom.CounterVec
	watchBatch     prom.Histogram
	graphArtifacts prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.phaseDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Duration of build phases (scanning, invalidating, rendering, writing)",
			Buckets:   prom.DefBuckets,
		}, []string{"phase"})
		pr.buildDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Total build duration by mode",
			Buckets:   prom.DefBuckets,
		}, []string{"mode"})
		pr.buildOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by mode and final status",
		}, []string{"mode", "outcome"})
		pr.artifacts = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_total",
			Help:      "Artifacts handled by result",
		}, []string{"result"})
		pr.watchBatch = prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "watch_batch_changes",
			Help:      "Number of settled changes per watch batch",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
		})
		pr.graphArtifacts = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "graph_artifacts",
			Help:      "Artifacts tracked by the dependency graph",
		})
		reg.MustRegister(pr.phaseDuration, pr.buildDuration, pr.buildOutcome, pr.artifacts, pr.watchBatch, pr.graphArtifacts)
	})
	return pr
}

func (p *PrometheusRecorder) ObservePhaseDuration(phase string, d time.Duration) {
	if p == nil || p.phaseDuration == nil {
		return
	}
	p.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveBuildDuration(mode string, d time.Duration) {
	if p == nil || p.buildDuration == nil {
		return
	}
	p.buildDuration.WithLabelValues(mode).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncBuildOutcome(mode, outcome string) {
	if p == nil || p.buildOutcome == nil {
		return
	}
	p.buildOutcome.WithLabelValues(mode, outcome).Inc()
}

func (p *PrometheusRecorder) AddArtifacts(result ArtifactLabel, n int) {
	if p == nil || p.artifacts == nil || n <= 0 {
		return
	}
	p.artifacts.WithLabelValues(string(result)).Add(float64(n))
}

func (p *PrometheusRecorder) ObserveWatchBatch(changes int) {
	if p == nil || p.watchBatch == nil {
		return
	}
	p.watchBatch.Observe(float64(changes))
}

func (p *PrometheusRecorder) SetGraphArtifacts(n int) {
	if p == nil || p.graphArtifacts == nil {
		return
	}
	p.graphArtifacts.Set(float64(n))
}
