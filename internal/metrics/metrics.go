// Package metrics exposes Prometheus collectors for the enrichment pipeline.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scoutRequestsTotal       *prometheus.CounterVec
	scoutOutcomesTotal       *prometheus.CounterVec
	scoutQuarantinedTotal    prometheus.Counter
	scoutBatchSize           *prometheus.GaugeVec
	scoutStoreEntries        *prometheus.GaugeVec
	scoutRateLimitDelaySecs  prometheus.Histogram
	scoutRequestDurationSecs prometheus.Histogram
	scoutCoolDownsTotal      prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		scoutRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "steamscout_requests_total",
				Help: "Total detail requests issued, labeled by result.",
			},
			[]string{"result"},
		)

		scoutOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "steamscout_outcomes_total",
				Help: "Total per-identifier outcomes, labeled by kind.",
			},
			[]string{"kind"},
		)

		scoutQuarantinedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "steamscout_quarantined_total",
				Help: "Total identifiers written to the quarantine document.",
			},
		)

		scoutBatchSize = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "steamscout_batch_size",
				Help: "Size of the most recent batch, labeled by pass.",
			},
			[]string{"pass"},
		)

		scoutStoreEntries = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "steamscout_store_entries",
				Help: "Entries per category store after the last flush.",
			},
			[]string{"store"},
		)

		scoutRateLimitDelaySecs = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "steamscout_rate_limit_delay_seconds",
				Help:    "Histogram of rate limiter wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		)

		scoutRequestDurationSecs = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "steamscout_request_duration_seconds",
				Help:    "Histogram of detail request latencies.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
			},
		)

		scoutCoolDownsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "steamscout_cooldowns_total",
				Help: "Total worker-wide cool-downs triggered by remote backpressure.",
			},
		)
	})
}

// ObserveRequest records one detail request with its result label and latency.
func ObserveRequest(result string, d time.Duration) {
	Init()
	scoutRequestsTotal.WithLabelValues(result).Inc()
	scoutRequestDurationSecs.Observe(d.Seconds())
}

// IncOutcome counts one terminal per-identifier outcome.
func IncOutcome(kind string) {
	Init()
	scoutOutcomesTotal.WithLabelValues(kind).Inc()
}

// IncQuarantined counts one quarantine write.
func IncQuarantined() {
	Init()
	scoutQuarantinedTotal.Inc()
}

// SetBatchSize records the size of the batch about to be processed.
func SetBatchSize(pass string, n int) {
	Init()
	scoutBatchSize.WithLabelValues(pass).Set(float64(n))
}

// SetStoreEntries records the entry count of one category store.
func SetStoreEntries(store string, n int) {
	Init()
	scoutStoreEntries.WithLabelValues(store).Set(float64(n))
}

// ObserveRateLimitDelay records time spent waiting on the limiter.
func ObserveRateLimitDelay(d time.Duration) {
	Init()
	scoutRateLimitDelaySecs.Observe(d.Seconds())
}

// IncCoolDown counts one worker-wide backpressure pause.
func IncCoolDown() {
	Init()
	scoutCoolDownsTotal.Inc()
}
