package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the engine.
type Metrics struct {
	AnalysisRequests *prometheus.CounterVec // labels: outcome={ok,partial,rejected,error}
	AnalysisDuration prometheus.Histogram
	EngineReady      prometheus.Gauge

	// Branch metrics.
	BranchRuns     *prometheus.CounterVec   // labels: branch={weather,ndvi,gdd}, outcome={ok,failed,timed_out}
	BranchDuration *prometheus.HistogramVec // labels: branch

	// Cache and upstream source metrics.
	CacheLookups   *prometheus.CounterVec   // labels: kind={weather,ndvi}, result={hit,miss}
	SourceRequests *prometheus.CounterVec   // labels: source, outcome={success,error}
	SourceDuration *prometheus.HistogramVec // labels: source
}

// NewMetrics creates and registers all engine metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		AnalysisRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agrosight",
			Name:      "analysis_requests_total",
			Help:      "Analysis requests by outcome.",
		}, []string{"outcome"}),
		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "agrosight",
			Name:      "analysis_duration_seconds",
			Help:      "End-to-end analysis request duration.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		EngineReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agrosight",
			Name:      "engine_ready",
			Help:      "1 when the engine is serving, 0 when shut down.",
		}),
		BranchRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agrosight",
			Name:      "branch_runs_total",
			Help:      "Sub-computation runs by branch and outcome.",
		}, []string{"branch", "outcome"}),
		BranchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agrosight",
			Name:      "branch_duration_seconds",
			Help:      "Per-branch computation duration.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}, []string{"branch"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agrosight",
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by kind and result.",
		}, []string{"kind", "result"}),
		SourceRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agrosight",
			Name:      "source_requests_total",
			Help:      "Upstream source requests by source and outcome.",
		}, []string{"source", "outcome"}),
		SourceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agrosight",
			Name:      "source_duration_seconds",
			Help:      "Upstream source request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"source"}),
	}

	prometheus.MustRegister(
		m.AnalysisRequests,
		m.AnalysisDuration,
		m.EngineReady,
		m.BranchRuns,
		m.BranchDuration,
		m.CacheLookups,
		m.SourceRequests,
		m.SourceDuration,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		AnalysisRequests: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "agrosight", Name: "analysis_requests_total"}, []string{"outcome"}),
		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "agrosight", Name: "analysis_duration_seconds"}),
		EngineReady:      prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "agrosight", Name: "engine_ready"}),
		BranchRuns:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "agrosight", Name: "branch_runs_total"}, []string{"branch", "outcome"}),
		BranchDuration:   prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "agrosight", Name: "branch_duration_seconds"}, []string{"branch"}),
		CacheLookups:     prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "agrosight", Name: "cache_lookups_total"}, []string{"kind", "result"}),
		SourceRequests:   prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "agrosight", Name: "source_requests_total"}, []string{"source", "outcome"}),
		SourceDuration:   prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "agrosight", Name: "source_duration_seconds"}, []string{"source"}),
	}
}
