package beam

import (
	"cmp"
	"math"
	"math/rand"
	"slices"
)

// topNodes keeps the k best-scoring nodes. Ties keep builder order.
func topNodes[T any](nodes []node[T], k int) []node[T] {
	slices.SortStableFunc(nodes, func(a, b node[T]) int {
		return cmp.Compare(b.score, a.score)
	})
	if len(nodes) > k {
		nodes = nodes[:k]
	}
	return nodes
}

// topBranches keeps the k best-scoring branches. Ties keep pool order, which
// makes deterministic searches reproducible.
func topBranches[T, C any](pool []branch[T, C], k int) []branch[T, C] {
	slices.SortStableFunc(pool, func(a, b branch[T, C]) int {
		return cmp.Compare(b.score, a.score)
	})
	if len(pool) > k {
		pool = pool[:k]
	}
	return pool
}

// sampleBranches draws min(k, len(pool)) branches without replacement, each
// draw proportional to exp(score) renormalized over what is still left.
// The result is in draw order.
func sampleBranches[T, C any](rng *rand.Rand, pool []branch[T, C], k int) []branch[T, C] {
	scores := make([]float64, len(pool))
	for i, b := range pool {
		scores[i] = b.score
	}
	picked := sampleWithoutReplacement(rng, scores, k)
	out := make([]branch[T, C], len(picked))
	for i, idx := range picked {
		out[i] = pool[idx]
	}
	return out
}

// sampleWithoutReplacement returns indices into scores drawn one at a time
// with probability proportional to exp(score) among the remaining entries.
// Weights are shifted by the best score before exponentiating; the shift
// cancels in the normalization and keeps long sequences from underflowing.
// Entries with zero weight are only taken, in order, once every entry with
// positive weight has been drawn.
func sampleWithoutReplacement(rng *rand.Rand, scores []float64, k int) []int {
	n := len(scores)
	k = min(k, n)
	if k <= 0 {
		return nil
	}

	best := math.Inf(-1)
	for _, s := range scores {
		best = max(best, s)
	}
	weights := make([]float64, n)
	for i, s := range scores {
		if math.IsInf(best, -1) {
			weights[i] = 1
			continue
		}
		weights[i] = math.Exp(s - best)
	}

	remaining := make([]int, n)
	for i := range remaining {
		remaining[i] = i
	}

	picked := make([]int, 0, k)
	for len(picked) < k {
		var total float64
		for _, idx := range remaining {
			total += weights[idx]
		}
		if total <= 0 {
			picked = append(picked, remaining[:k-len(picked)]...)
			break
		}

		r := rng.Float64() * total
		pos := -1
		var c float64
		for j, idx := range remaining {
			if weights[idx] == 0 {
				continue
			}
			c += weights[idx]
			pos = j
			if r < c {
				break
			}
		}
		picked = append(picked, remaining[pos])
		remaining = slices.Delete(remaining, pos, pos+1)
	}
	return picked
}
