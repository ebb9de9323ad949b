// Package metrics exposes the Storage Engine's runtime counters as
// Prometheus collectors, grounded on the teacher's telemetry package
// (pkg/telemetry) but wired directly to prometheus/client_golang instead
// of through an OpenTelemetry exporter chain, since no OTLP collector
// or trace pipeline exists for this embeddable engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collectors bundles every metric the engine and its background workers
// update. A single instance is created per Storage Engine and registered
// with the process's default registry (or a caller-supplied one via
// NewCollectors).
type Collectors struct {
	OpsTotal      *prometheus.CounterVec
	OpErrorsTotal *prometheus.CounterVec

	KeyCount       prometheus.GaugeFunc
	LogSizeBytes   prometheus.GaugeFunc
	MaxProbeLength prometheus.GaugeFunc

	CompactionsTotal   *prometheus.CounterVec
	CompactionDuration prometheus.Histogram
}

// NewCollectors creates the metric set and registers it against reg. reg
// is typically prometheus.DefaultRegisterer; tests should pass a fresh
// prometheus.NewRegistry() to avoid duplicate-registration panics across
// runs.
func NewCollectors(reg prometheus.Registerer, keyCount func() float64, logSize func() float64, maxProbe func() float64) *Collectors {
	c := &Collectors{
		OpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nubdb",
			Name:      "ops_total",
			Help:      "Total number of engine operations processed, by operation name.",
		}, []string{"op"}),
		OpErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nubdb",
			Name:      "op_errors_total",
			Help:      "Total number of engine operations that returned an error, by operation name.",
		}, []string{"op"}),
		CompactionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nubdb",
			Name:      "compactions_total",
			Help:      "Total number of compaction cycles, by outcome (ran, skipped, failed).",
		}, []string{"outcome"}),
		CompactionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nubdb",
			Name:      "compaction_duration_seconds",
			Help:      "Duration of compaction rewrite cycles that actually ran.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	c.KeyCount = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "nubdb",
		Name:      "keys",
		Help:      "Current number of keys in the index, including expired keys not yet cleaned up.",
	}, keyCount)
	c.LogSizeBytes = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "nubdb",
		Name:      "log_size_bytes",
		Help:      "Current size in bytes of the append-only log file.",
	}, logSize)
	c.MaxProbeLength = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "nubdb",
		Name:      "index_max_probe_length",
		Help:      "Largest probe sequence length observed across occupied slots.",
	}, maxProbe)

	reg.MustRegister(
		c.OpsTotal,
		c.OpErrorsTotal,
		c.CompactionsTotal,
		c.CompactionDuration,
		c.KeyCount,
		c.LogSizeBytes,
		c.MaxProbeLength,
	)

	return c
}

// ObserveOp records one completed operation named op, incrementing the
// error counter too when err is non-nil.
func (c *Collectors) ObserveOp(op string, err error) {
	c.OpsTotal.WithLabelValues(op).Inc()
	if err != nil {
		c.OpErrorsTotal.WithLabelValues(op).Inc()
	}
}

// ObserveCompaction records the outcome of one Coordinator tick. Pass
// ran=false for a skipped cycle (log below the rewrite threshold).
func (c *Collectors) ObserveCompaction(ran bool, durationSeconds float64, err error) {
	switch {
	case !ran:
		c.CompactionsTotal.WithLabelValues("skipped").Inc()
	case err != nil:
		c.CompactionsTotal.WithLabelValues("failed").Inc()
	default:
		c.CompactionsTotal.WithLabelValues("ran").Inc()
		c.CompactionDuration.Observe(durationSeconds)
	}
}
