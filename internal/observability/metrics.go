package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "meteo_ingest"

// Metrics holds the Prometheus counters, histograms, and gauges for ingestion runs.
type Metrics struct {
	RunsTotal       *prometheus.CounterVec // labels: outcome={ok,partial,offline,failed}
	RunDuration     prometheus.Histogram
	LastSuccess     prometheus.Gauge
	SchedulerActive prometheus.Gauge

	RecordsParsed   *prometheus.CounterVec // labels: parser
	RecordsDegraded prometheus.Counter
	BatchesBuilt    prometheus.Counter

	// Per-target write metrics.
	RecordsInserted  *prometheus.CounterVec   // labels: target
	RecordsSkipped   *prometheus.CounterVec   // labels: target
	BatchFailures    *prometheus.CounterVec   // labels: target, stage={exists,insert}
	ConnectFailures  *prometheus.CounterVec   // labels: target
	TargetDuration   *prometheus.HistogramVec // labels: target
	InvalidTargets   prometheus.Gauge
	OfflineArtifacts prometheus.Counter

	// Upstream fetch metrics.
	UpstreamRequests *prometheus.CounterVec // labels: outcome={success,error,rejected}
	UpstreamDuration prometheus.Histogram
}

func newMetrics() *Metrics {
	return &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Ingestion runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete fetch-parse-write run.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that wrote to at least one target.",
		}),
		SchedulerActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_active",
			Help:      "1 while the scheduled mode is running, 0 otherwise.",
		}),
		RecordsParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_parsed_total",
			Help:      "Observations produced by the payload parsers.",
		}, []string{"parser"}),
		RecordsDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_degraded_total",
			Help:      "Observations whose timestamp fell back to the wall clock.",
		}),
		BatchesBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Batches built across runs.",
		}),
		RecordsInserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_inserted_total",
			Help:      "Observations written per target.",
		}, []string{"target"}),
		RecordsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      "Observations skipped as already stored, per target.",
		}, []string{"target"}),
		BatchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_failures_total",
			Help:      "Batches abandoned per target and stage.",
		}, []string{"target", "stage"}),
		ConnectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_failures_total",
			Help:      "Failed target connections.",
		}, []string{"target"}),
		TargetDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "target_duration_seconds",
			Help:      "Time spent connecting to and writing one target.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"target"}),
		InvalidTargets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "invalid_targets",
			Help:      "Targets rejected by validation in the last run.",
		}),
		OfflineArtifacts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offline_artifacts_total",
			Help:      "Offline CSV files written because no target was reachable.",
		}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Upstream API requests by outcome.",
		}, []string{"outcome"}),
		UpstreamDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      "Upstream API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RunsTotal, m.RunDuration, m.LastSuccess, m.SchedulerActive,
		m.RecordsParsed, m.RecordsDegraded, m.BatchesBuilt,
		m.RecordsInserted, m.RecordsSkipped, m.BatchFailures, m.ConnectFailures,
		m.TargetDuration, m.InvalidTargets, m.OfflineArtifacts,
		m.UpstreamRequests, m.UpstreamDuration,
	}
}

// NewMetrics creates and registers all ingestion metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	prometheus.NewRegistry().MustRegister(m.collectors()...)
	return m
}
