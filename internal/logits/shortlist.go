// Package logits turns raw decoder logits into scored next-token candidates.
package logits

import (
	"math"
	"slices"
)

// Config configures Shortlist.
type Config struct {
	// K is the number of candidates kept. K <= 0 keeps the whole vocabulary.
	K int
	// Temperature divides the logits before normalization. Values <= 0 mean 1.
	Temperature float32
	// Suppress lists token ids that are never proposed, such as padding.
	// Suppressed tokens still take part in the normalization.
	Suppress []int
}

// Shortlist returns the K most likely token ids and their natural-log
// probabilities under softmax(logits / Temperature), best first. Ties keep
// the lower id first, so the result is fully determined by its inputs.
//
// The log-softmax subtracts the largest scaled logit before exponentiating
// so the normalizer cannot overflow.
func Shortlist(logits []float32, cfg Config) ([]int, []float64) {
	if len(logits) == 0 {
		return nil, nil
	}
	temp := float64(cfg.Temperature)
	if temp <= 0 {
		temp = 1
	}
	invTemp := 1 / temp

	lp := LogSoftmax(logits, invTemp)

	k := cfg.K
	if k <= 0 || k > len(lp) {
		k = len(lp)
	}
	return topK(lp, k, cfg.Suppress)
}

// LogSoftmax returns log(softmax(logits * invTemp)) in float64.
func LogSoftmax(logits []float32, invTemp float64) []float64 {
	out := make([]float64, len(logits))
	maxv := math.Inf(-1)
	for i, l := range logits {
		out[i] = float64(l) * invTemp
		maxv = max(maxv, out[i])
	}
	var sum float64
	for _, v := range out {
		sum += math.Exp(v - maxv)
	}
	logZ := maxv + math.Log(sum)
	for i := range out {
		out[i] -= logZ
	}
	return out
}

// topK returns the indices and values of the k largest elements of lp,
// skipping suppressed ids. The returned slices are ordered from largest to
// smallest. This is an O(V*K) insertion scheme suitable for small K.
func topK(lp []float64, k int, suppress []int) ([]int, []float64) {
	topIdx := make([]int, 0, k+1)
	topVal := make([]float64, 0, k+1)

	for i, v := range lp {
		if len(suppress) > 0 && slices.Contains(suppress, i) {
			continue
		}
		pos := len(topVal)
		for pos > 0 && topVal[pos-1] < v {
			pos--
		}
		if pos >= k {
			continue
		}

		topIdx = append(topIdx, 0)
		topVal = append(topVal, 0)
		copy(topIdx[pos+1:], topIdx[pos:])
		copy(topVal[pos+1:], topVal[pos:])
		topIdx[pos] = i
		topVal[pos] = v

		if len(topVal) > k {
			topIdx = topIdx[:k]
			topVal = topVal[:k]
		}
	}
	return topIdx, topVal
}
