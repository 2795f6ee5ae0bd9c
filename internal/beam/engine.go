package beam

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/samcharles93/captioner/internal/logger"
)

// Engine runs beam searches driven by a single Builder. An Engine may be
// shared between goroutines; the random source is guarded internally.
type Engine[T, C any] struct {
	build Builder[T, C]
	opts  options

	rngMu sync.Mutex
}

// New returns an engine that expands branches with build.
func New[T, C any](build Builder[T, C], opts ...Option) (*Engine[T, C], error) {
	if build == nil {
		return nil, fmt.Errorf("%w: builder is nil", ErrInvalidConfig)
	}
	o := options{
		finalize:    FinalizeRaw,
		observer:    nopObserver{},
		parallelism: 1,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if o.parallelism < 1 {
		o.parallelism = 1
	}
	switch o.finalize {
	case FinalizeRaw, FinalizeRenormalized:
	default:
		return nil, fmt.Errorf("%w: unknown finalize mode %d", ErrInvalidConfig, o.finalize)
	}
	return &Engine[T, C]{build: build, opts: o}, nil
}

// Search runs exactly p.MaxLen expansion steps from a root branch holding
// initial and returns the final beam. In deterministic mode the results are
// ordered by descending probability; in probabilistic mode they keep the
// order in which the last prune drew them.
//
// Any Builder error, contract violation or context cancellation aborts the
// search and no partial results are returned.
func (e *Engine[T, C]) Search(ctx context.Context, p Params, initial C) ([]Result[T], error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	log := e.opts.log
	if log == nil {
		log = logger.FromContext(ctx)
	}
	log = log.With("component", "beam", "mode", p.Mode(), "beam_size", p.BeamSize, "max_len", p.MaxLen)

	sum := Summary{Mode: p.Mode(), BeamSize: p.BeamSize, MaxLen: p.MaxLen}
	start := time.Now()
	defer func() {
		sum.Duration = time.Since(start)
		e.opts.observer.ObserveSearch(sum)
	}()

	frontier := []branch[T, C]{{content: []T{}, state: initial}}
	for step := 0; step < p.MaxLen; step++ {
		if err := ctx.Err(); err != nil {
			sum.Err = err
			return nil, err
		}

		pool, calls, err := e.expand(ctx, step, frontier, p)
		sum.BuilderCalls += calls
		if err != nil {
			sum.Err = err
			log.Debug("search aborted", "step", step, "error", err)
			return nil, err
		}
		if len(pool) == 0 {
			sum.Err = fmt.Errorf("%w at step %d", ErrExhausted, step)
			return nil, sum.Err
		}

		frontier = e.prune(pool, p.BeamSize, p.Probabilistic)
		sum.Steps++
		e.opts.observer.ObserveStep(sum.Mode, step, len(pool), len(frontier))
	}

	results := e.finish(frontier)
	sum.Results = len(results)
	log.Debug("search finished",
		"steps", sum.Steps,
		"builder_calls", sum.BuilderCalls,
		"results", sum.Results,
		"elapsed", time.Since(start),
	)
	return results, nil
}

// expand calls the builder once per branch of the frontier and returns the
// merged children of every parent, flattened in parent order.
func (e *Engine[T, C]) expand(ctx context.Context, step int, frontier []branch[T, C], p Params) ([]branch[T, C], int, error) {
	children := make([][]branch[T, C], len(frontier))
	calls := 0

	if e.opts.parallelism == 1 || len(frontier) == 1 {
		for i, parent := range frontier {
			calls++
			kids, err := e.expandBranch(ctx, step, parent, p)
			if err != nil {
				return nil, calls, err
			}
			children[i] = kids
		}
	} else {
		// The first failure cancels the builders still running for this
		// step and stops new ones from starting.
		stepCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		var (
			wg       sync.WaitGroup
			sem      = make(chan struct{}, e.opts.parallelism)
			failOnce sync.Once
			firstErr error
		)
		fail := func(err error) {
			failOnce.Do(func() {
				firstErr = err
				cancel()
			})
		}

	launch:
		for i, parent := range frontier {
			select {
			case sem <- struct{}{}:
			case <-stepCtx.Done():
				break launch
			}
			calls++
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				kids, err := e.expandBranch(stepCtx, step, parent, p)
				if err != nil {
					fail(err)
					return
				}
				children[i] = kids
			}()
		}
		wg.Wait()
		if firstErr != nil {
			return nil, calls, firstErr
		}
		if err := ctx.Err(); err != nil {
			return nil, calls, err
		}
	}

	n := 0
	for _, c := range children {
		n += len(c)
	}
	pool := make([]branch[T, C], 0, n)
	for _, c := range children {
		pool = append(pool, c...)
	}
	return pool, calls, nil
}

func (e *Engine[T, C]) expandBranch(ctx context.Context, step int, parent branch[T, C], p Params) ([]branch[T, C], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Clip capacity so a builder appending to content cannot write into a
	// sibling's backing array.
	out, err := e.build(ctx, parent.content[:len(parent.content):len(parent.content)], parent.state)
	if err != nil {
		return nil, &BuilderError{Step: step, Err: err}
	}
	if len(out.Tokens) != len(out.LogProbs) {
		return nil, fmt.Errorf("%w: step %d returned %d tokens and %d scores",
			ErrContractViolation, step, len(out.Tokens), len(out.LogProbs))
	}

	nodes := make([]node[T], len(out.Tokens))
	for i, tok := range out.Tokens {
		lp := out.LogProbs[i]
		if math.IsNaN(lp) || math.IsInf(lp, 1) {
			return nil, fmt.Errorf("%w: step %d candidate %d has log-probability %v",
				ErrContractViolation, step, i, lp)
		}
		nodes[i] = node[T]{token: tok, score: lp}
	}

	// The local prune only applies to the deterministic path; sampling
	// draws from every candidate of every parent.
	if !p.Probabilistic {
		nodes = topNodes(nodes, p.BeamSize)
	}

	kids := make([]branch[T, C], len(nodes))
	for i, n := range nodes {
		kids[i] = parent.merge(n, out.Next)
	}
	return kids, nil
}

func (e *Engine[T, C]) prune(pool []branch[T, C], k int, probabilistic bool) []branch[T, C] {
	if !probabilistic {
		return topBranches(pool, k)
	}
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return sampleBranches(e.opts.rng, pool, k)
}

func (e *Engine[T, C]) finish(frontier []branch[T, C]) []Result[T] {
	results := make([]Result[T], len(frontier))
	for i, b := range frontier {
		results[i] = Result[T]{
			Content:     b.content,
			Probability: math.Exp(b.score),
			LogProb:     b.score,
		}
	}
	if e.opts.finalize == FinalizeRenormalized {
		renormalize(results)
	}
	return results
}

// renormalize rescales probabilities to sum to 1 over results, shifting by
// the best log-probability first so long sequences do not underflow.
func renormalize[T any](results []Result[T]) {
	if len(results) == 0 {
		return
	}
	best := math.Inf(-1)
	for _, r := range results {
		best = max(best, r.LogProb)
	}
	if math.IsInf(best, -1) {
		for i := range results {
			results[i].Probability = 1 / float64(len(results))
		}
		return
	}
	var total float64
	for i := range results {
		results[i].Probability = math.Exp(results[i].LogProb - best)
		total += results[i].Probability
	}
	for i := range results {
		results[i].Probability /= total
	}
}
