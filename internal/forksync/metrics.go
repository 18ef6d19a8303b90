package forksync

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"

	prometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "forksync"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of blocks fetched from peers, including recall blocks.
	BlocksFetched metrics.Counter
	// Number of fetch attempts that were retried.
	FetchRetries metrics.Counter
	// Number of blocks that passed validation during recovery.
	BlocksVerified metrics.Counter
	// Number of sessions that reached the Recovered state.
	Recoveries metrics.Counter
	// Number of sessions that reached the Aborted state.
	Aborts metrics.Counter
	// Height of the most recently adopted chain tip.
	TipHeight metrics.Gauge
	// Whether a recovery session is currently running. 1 if yes, 0 if no.
	Recovering metrics.Gauge
}

// PrometheusMetrics returns Metrics built using Prometheus client library.
// Optionally, labels can be provided along with their values ("foo",
// "fooValue").
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		BlocksFetched: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "blocks_fetched",
			Help:      "Number of blocks fetched from peers, including recall blocks.",
		}, labels).With(labelsAndValues...),
		FetchRetries: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "fetch_retries",
			Help:      "Number of fetch attempts that were retried.",
		}, labels).With(labelsAndValues...),
		BlocksVerified: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "blocks_verified",
			Help:      "Number of blocks that passed validation during recovery.",
		}, labels).With(labelsAndValues...),
		Recoveries: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "recoveries",
			Help:      "Number of sessions that reached the Recovered state.",
		}, labels).With(labelsAndValues...),
		Aborts: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "aborts",
			Help:      "Number of sessions that reached the Aborted state.",
		}, labels).With(labelsAndValues...),
		TipHeight: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "tip_height",
			Help:      "Height of the most recently adopted chain tip.",
		}, labels).With(labelsAndValues...),
		Recovering: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "recovering",
			Help:      "Whether a recovery session is currently running. 1 if yes, 0 if no.",
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		BlocksFetched:  discard.NewCounter(),
		FetchRetries:   discard.NewCounter(),
		BlocksVerified: discard.NewCounter(),
		Recoveries:     discard.NewCounter(),
		Aborts:         discard.NewCounter(),
		TipHeight:      discard.NewGauge(),
		Recovering:     discard.NewGauge(),
	}
}
