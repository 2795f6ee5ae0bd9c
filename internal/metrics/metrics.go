// Package metrics provides Prometheus instrumentation for caption searches.
//
// Metrics categories:
//   - Searches: counts by mode and outcome, latency histogram
//   - Steps: candidate pool size and kept branches per pruning step
//   - Builder: decoder calls made by the beam engine
//   - API: captions stored in the server
package metrics

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/samcharles93/captioner/internal/beam"
)

var (
	// SearchesTotal counts searches by pruning mode and outcome.
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "captioner_searches_total",
			Help: "Total number of beam searches",
		},
		[]string{"mode", "outcome"},
	)

	// SearchDuration tracks the latency of complete searches.
	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "captioner_search_duration_seconds",
			Help:    "Duration of beam searches in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"mode"},
	)

	// BuilderCallsTotal counts decoder steps requested by the engine.
	BuilderCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "captioner_builder_calls_total",
			Help: "Total number of builder calls made during searches",
		},
		[]string{"mode"},
	)

	// StepPoolSize observes the candidate pool size before each global prune.
	StepPoolSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "captioner_step_pool_size",
			Help:    "Number of candidate branches considered at each pruning step",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"mode"},
	)

	// BranchesPrunedTotal counts branches discarded by global pruning.
	BranchesPrunedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "captioner_branches_pruned_total",
			Help: "Total number of branches discarded by pruning",
		},
		[]string{"mode"},
	)

	// StoredCaptions is the number of caption records held by the API server.
	StoredCaptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "captioner_stored_captions",
			Help: "Number of caption records held in memory",
		},
	)
)

// Observer feeds beam engine events into the package metrics.
type Observer struct{}

var _ beam.Observer = Observer{}

func (Observer) ObserveStep(mode string, _, pooled, kept int) {
	StepPoolSize.WithLabelValues(mode).Observe(float64(pooled))
	BranchesPrunedTotal.WithLabelValues(mode).Add(float64(pooled - kept))
}

func (Observer) ObserveSearch(s beam.Summary) {
	SearchesTotal.WithLabelValues(s.Mode, outcome(s.Err)).Inc()
	SearchDuration.WithLabelValues(s.Mode).Observe(s.Duration.Seconds())
	BuilderCallsTotal.WithLabelValues(s.Mode).Add(float64(s.BuilderCalls))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, beam.ErrInvalidConfig):
		return "invalid"
	case errors.Is(err, beam.ErrContractViolation):
		return "contract_violation"
	case errors.Is(err, beam.ErrExhausted):
		return "exhausted"
	default:
		return "error"
	}
}
