package bench

import (
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the append-only latency vector needed for the final
// percentile computation, plus a Prometheus mirror of the running state.
type Metrics struct {
	latencies []time.Duration
	startedAt time.Time
	stoppedAt time.Time
	dropped   int

	completed  prometheus.Counter
	droppedCtr prometheus.Counter
	outstndGag prometheus.Gauge
	latencyHst prometheus.Histogram
}

// NewMetrics preallocates the latency vector to targetResponses and
// registers the Prometheus instruments against reg. reg may be nil to
// skip Prometheus registration entirely (useful in unit tests).
func NewMetrics(reg prometheus.Registerer, targetResponses int) *Metrics {
	m := &Metrics{
		latencies: make([]time.Duration, 0, targetResponses),
	}
	if reg == nil {
		return m
	}
	factory := promauto.With(reg)
	m.completed = factory.NewCounter(prometheus.CounterOpts{
		Name: "rpcbench_requests_completed_total",
		Help: "Total number of requests whose terminal response has been accounted for.",
	})
	m.droppedCtr = factory.NewCounter(prometheus.CounterOpts{
		Name: "rpcbench_requests_dropped_total",
		Help: "Total number of outstanding slots leaked to a response that never arrived.",
	})
	m.outstndGag = factory.NewGauge(prometheus.GaugeOpts{
		Name: "rpcbench_outstanding",
		Help: "Current count of sent-but-unacknowledged requests on this core.",
	})
	m.latencyHst = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "rpcbench_request_latency_seconds",
		Help:    "Per-request latency from send to terminal response.",
		Buckets: prometheus.ExponentialBuckets(1e-6, 2, 24),
	})
	return m
}

// Start records the benchmark's start stamp, for throughput computation at
// termination.
func (m *Metrics) Start() { m.startedAt = time.Now() }

// Stop records the benchmark's stop stamp.
func (m *Metrics) Stop() { m.stoppedAt = time.Now() }

// RecordLatency appends one completed request's latency to the vector.
func (m *Metrics) RecordLatency(d time.Duration) {
	m.latencies = append(m.latencies, d)
	if m.completed != nil {
		m.completed.Inc()
	}
	if m.latencyHst != nil {
		m.latencyHst.Observe(d.Seconds())
	}
}

// RecordDrop counts one outstanding slot that leaked without a terminal
// response ever arriving; this benchmark has no cancellation path, so a
// leaked slot is a permanent loss of one window entry, not a retry.
func (m *Metrics) RecordDrop() {
	m.dropped++
	if m.droppedCtr != nil {
		m.droppedCtr.Inc()
	}
}

// SetOutstanding mirrors the current per-core outstanding count into the
// Prometheus gauge.
func (m *Metrics) SetOutstanding(n int) {
	if m.outstndGag != nil {
		m.outstndGag.Set(float64(n))
	}
}

// Len returns the number of recorded latency samples.
func (m *Metrics) Len() int { return len(m.latencies) }

// Dropped returns the number of leaked outstanding slots recorded.
func (m *Metrics) Dropped() int { return m.dropped }

// Summary is the final termination report: throughput and median/p99
// latency.
type Summary struct {
	Completed      int
	Dropped        int
	ThroughputOps  float64
	MedianLatency  time.Duration
	P99Latency     time.Duration
	ElapsedSeconds float64
}

// Summarize computes the termination report. It sorts a copy of the
// latency vector; the recorded samples keep their arrival order.
func (m *Metrics) Summarize() Summary {
	n := len(m.latencies)
	sorted := append([]time.Duration(nil), m.latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	elapsed := m.stoppedAt.Sub(m.startedAt).Seconds()
	var throughput float64
	if elapsed > 0 {
		throughput = float64(n) / elapsed
	}

	return Summary{
		Completed:      n,
		Dropped:        m.dropped,
		ThroughputOps:  throughput,
		MedianLatency:  percentile(sorted, 0.50),
		P99Latency:     percentile(sorted, 0.99),
		ElapsedSeconds: elapsed,
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
