package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bovine"

// Metrics holds the Prometheus counters, histograms, and gauges for the
// fetch-fuse-cache pipeline.
type Metrics struct {
	CyclesTotal          *prometheus.CounterVec // labels: outcome={success,error,panic,skipped}
	CycleDuration        prometheus.Histogram
	CycleRunning         prometheus.Gauge
	LastSuccessTimestamp prometheus.Gauge

	// Source fetch metrics.
	SourceFetches       *prometheus.CounterVec   // labels: source, status={connected,cached,limited,failed}
	SourceFetchDuration *prometheus.HistogramVec // labels: source
	SourceMemo          *prometheus.CounterVec   // labels: source, result={hit,miss}

	// Cache metrics.
	CacheWrites *prometheus.CounterVec // labels: collection, outcome={ok,retried,skipped}

	// Derived artifact metrics.
	HerdsEstimated prometheus.Gauge
	ZonesScored    *prometheus.GaugeVec   // labels: level
	ChangeEvents   *prometheus.CounterVec // labels: category, kind
	AlertFailures  prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.CycleRunning,
		m.LastSuccessTimestamp,
		m.SourceFetches,
		m.SourceFetchDuration,
		m.SourceMemo,
		m.CacheWrites,
		m.HerdsEstimated,
		m.ZonesScored,
		m.ChangeEvents,
		m.AlertFailures,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid "already
// registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      help("Batch cycles by outcome."),
		}, []string{"outcome"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      help("Duration of a complete fetch-fuse-cache cycle."),
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		CycleRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cycle_running",
			Help:      help("1 while a cycle is in flight, 0 otherwise."),
		}),
		LastSuccessTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      help("Unix time of the last cycle that committed to the cache."),
		}),
		SourceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetches_total",
			Help:      help("Source fetch results by source and status."),
		}, []string{"source", "status"}),
		SourceFetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_fetch_duration_seconds",
			Help:      help("Source fetch duration including the retry."),
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"source"}),
		SourceMemo: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_memo_total",
			Help:      help("Memoized source lookups by result."),
		}, []string{"source", "result"}),
		CacheWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_writes_total",
			Help:      help("Cache collection writes by outcome."),
		}, []string{"collection", "outcome"}),
		HerdsEstimated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "herds_estimated",
			Help:      help("Herd estimates produced by the last cycle."),
		}),
		ZonesScored: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "zones_scored",
			Help:      help("Conflict zones produced by the last cycle, by risk level."),
		}, []string{"level"}),
		ChangeEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "change_events_total",
			Help:      help("Change events detected by category and kind."),
		}, []string{"category", "kind"}),
		AlertFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_publish_failures_total",
			Help:      help("Failed attempts to publish change events."),
		}),
	}
}
