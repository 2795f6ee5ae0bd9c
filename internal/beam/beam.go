// Package beam implements a generic beam search over token sequences.
//
// The engine knows nothing about the tokens it produces or the state that
// drives them. A Builder supplied by the caller proposes the next tokens of
// a partial sequence together with their log-probabilities and the state to
// carry into the following step. The engine expands, scores and prunes the
// frontier for a fixed number of steps and returns the surviving sequences.
package beam

import (
	"context"
	"fmt"
)

// Step is what a Builder returns for one partial sequence: one candidate
// token per entry of Tokens, its natural-log probability at the same index
// of LogProbs, and the state shared by every candidate of this call.
type Step[T, C any] struct {
	Tokens   []T
	LogProbs []float64
	Next     C
}

// Builder proposes continuations for content given the state produced by
// the call that created it. content must be treated as read-only.
type Builder[T, C any] func(ctx context.Context, content []T, state C) (Step[T, C], error)

// Params are the per-search parameters.
type Params struct {
	// BeamSize bounds the frontier width at every step.
	BeamSize int
	// MaxLen is the exact number of expansion steps.
	MaxLen int
	// Probabilistic switches pruning from top-k by score to weighted
	// sampling without replacement.
	Probabilistic bool
}

// Validate reports a configuration error for parameters the search cannot run with.
func (p Params) Validate() error {
	if p.BeamSize <= 0 {
		return fmt.Errorf("%w: beam size must be positive, got %d", ErrInvalidConfig, p.BeamSize)
	}
	if p.MaxLen < 0 {
		return fmt.Errorf("%w: max length must not be negative, got %d", ErrInvalidConfig, p.MaxLen)
	}
	return nil
}

// Mode names the pruning policy, mostly for logs and metrics.
func (p Params) Mode() string {
	if p.Probabilistic {
		return "probabilistic"
	}
	return "deterministic"
}

// Result is one sequence of the final beam.
type Result[T any] struct {
	Content []T
	// Probability is exp(LogProb), or its share of the beam total when the
	// engine finalizes with FinalizeRenormalized.
	Probability float64
	// LogProb is the sum of the per-token log-probabilities along Content.
	LogProb float64
}

// branch is an immutable candidate on the frontier. content is never
// appended to in place; children always get their own backing array.
type branch[T, C any] struct {
	content []T
	score   float64
	state   C
}

// node is a single proposed continuation before it is merged with its parent.
type node[T any] struct {
	token T
	score float64
}

func (b branch[T, C]) merge(n node[T], state C) branch[T, C] {
	content := make([]T, len(b.content)+1)
	copy(content, b.content)
	content[len(b.content)] = n.token
	return branch[T, C]{
		content: content,
		score:   b.score + n.score,
		state:   state,
	}
}
