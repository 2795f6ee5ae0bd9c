package beam

import (
	"math/rand"
	"time"

	"github.com/samcharles93/captioner/internal/logger"
)

// Finalize selects how surviving scores are turned into probabilities.
type Finalize int

const (
	// FinalizeRaw reports exp(score) for every branch.
	FinalizeRaw Finalize = iota
	// FinalizeRenormalized divides exp(score) by the total over the final
	// beam so the returned probabilities sum to 1.
	FinalizeRenormalized
)

func (f Finalize) String() string {
	switch f {
	case FinalizeRaw:
		return "raw"
	case FinalizeRenormalized:
		return "renormalized"
	default:
		return "unknown"
	}
}

// Summary describes a finished (or failed) search.
type Summary struct {
	Mode         string
	BeamSize     int
	MaxLen       int
	Steps        int
	BuilderCalls int
	Results      int
	Duration     time.Duration
	Err          error
}

// Observer receives instrumentation events. Implementations must be safe
// for concurrent use when one engine serves concurrent searches.
type Observer interface {
	// ObserveStep is called after the global prune of every step with the
	// size of the candidate pool and the number of branches kept.
	ObserveStep(mode string, step, pooled, kept int)
	// ObserveSearch is called once per search.
	ObserveSearch(s Summary)
}

type nopObserver struct{}

func (nopObserver) ObserveStep(string, int, int, int) {}
func (nopObserver) ObserveSearch(Summary)             {}

type options struct {
	rng         *rand.Rand
	finalize    Finalize
	observer    Observer
	log         logger.Logger
	parallelism int
}

// Option configures an Engine.
type Option func(*options)

// WithRand sets the random source used by probabilistic pruning.
func WithRand(rng *rand.Rand) Option {
	return func(o *options) {
		o.rng = rng
	}
}

// WithSeed seeds the random source used by probabilistic pruning.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.rng = rand.New(rand.NewSource(seed))
	}
}

// WithFinalize selects the finalization of scores. The default is FinalizeRaw.
func WithFinalize(f Finalize) Option {
	return func(o *options) {
		o.finalize = f
	}
}

// WithObserver installs an instrumentation hook.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithLogger overrides the logger otherwise taken from the search context.
func WithLogger(log logger.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithParallelism lets one step call the Builder for up to n branches at a
// time. Results are merged in parent order, so the output matches a
// sequential run. Builders must be safe for concurrent use when n > 1.
func WithParallelism(n int) Option {
	return func(o *options) {
		o.parallelism = n
	}
}
