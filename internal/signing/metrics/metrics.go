package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	// SignAttempts tracks every classified sign-in attempt
	SignAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tiebasign_sign_attempts_total",
			Help: "Total number of classified sign-in attempts",
		},
		[]string{"category", "round"},
	)

	// TransportRetries tracks backoff decisions taken by the transport retrier
	TransportRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tiebasign_transport_retries_total",
			Help: "Total number of transport-level retries",
		},
		[]string{"operation", "action"},
	)

	// RetryRounds tracks application-level retry rounds
	RetryRounds = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tiebasign_retry_rounds_total",
			Help: "Total number of retry rounds executed",
		},
	)

	// BatchDuration tracks how long a batch takes, retry rounds included
	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tiebasign_batch_duration_seconds",
			Help:    "Batch duration in seconds, including its retry rounds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	// RunItems holds the final per-category counts of the last run
	RunItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tiebasign_run_items",
			Help: "Item counts of the last completed run by result",
		},
		[]string{"result"},
	)

	// RunsTotal tracks finished runs by status
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tiebasign_runs_total",
			Help: "Total number of runs by status",
		},
		[]string{"status"},
	)

	// LastRunTimestamp is the unix time the last run finished
	LastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tiebasign_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		},
	)
)

// Push sends the default registry to a Prometheus Pushgateway. Batch jobs
// exit before a scraper would see them, so runs push instead.
func Push(url, job, instance string) error {
	p := push.New(url, job).Gatherer(prometheus.DefaultGatherer)
	if instance != "" {
		p = p.Grouping("instance", instance)
	}
	if err := p.Push(); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
