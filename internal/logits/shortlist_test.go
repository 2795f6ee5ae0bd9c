package logits

import (
	"math"
	"slices"
	"testing"
)

func TestShortlistTopK(t *testing.T) {
	t.Parallel()

	ids, lps := Shortlist([]float32{-1, 5, 3, 7, 2}, Config{K: 3})
	if !slices.Equal(ids, []int{3, 1, 2}) {
		t.Fatalf("unexpected ids %v", ids)
	}
	for i := 1; i < len(lps); i++ {
		if lps[i] > lps[i-1] {
			t.Fatalf("log-probabilities not descending: %v", lps)
		}
	}
}

func TestShortlistWholeVocabularyNormalizes(t *testing.T) {
	t.Parallel()

	ids, lps := Shortlist([]float32{0.5, 1.5, -2, 0}, Config{})
	if len(ids) != 4 {
		t.Fatalf("expected the whole vocabulary, got %v", ids)
	}
	var total float64
	for _, lp := range lps {
		total += math.Exp(lp)
	}
	if math.Abs(total-1) > 1e-9 {
		t.Fatalf("probabilities sum to %v", total)
	}
}

func TestShortlistTiesKeepLowerIDFirst(t *testing.T) {
	t.Parallel()

	ids, _ := Shortlist([]float32{1, 2, 2, 2, 0}, Config{K: 2})
	if !slices.Equal(ids, []int{1, 2}) {
		t.Fatalf("unexpected tie order %v", ids)
	}
}

func TestShortlistSuppress(t *testing.T) {
	t.Parallel()

	ids, lps := Shortlist([]float32{9, 1, 2}, Config{K: 2, Suppress: []int{0}})
	if !slices.Equal(ids, []int{2, 1}) {
		t.Fatalf("suppressed token proposed: %v", ids)
	}
	// The suppressed token still holds most of the mass.
	if math.Exp(lps[0]) > 0.01 {
		t.Fatalf("suppression should not renormalize, got p=%v", math.Exp(lps[0]))
	}
}

func TestShortlistTemperature(t *testing.T) {
	t.Parallel()

	logits := []float32{2, 1}
	_, cold := Shortlist(logits, Config{Temperature: 0.5})
	_, hot := Shortlist(logits, Config{Temperature: 2})
	if !(cold[0] > hot[0]) {
		t.Fatalf("lower temperature should sharpen: cold=%v hot=%v", cold, hot)
	}
}

func TestLogSoftmaxLargeLogits(t *testing.T) {
	t.Parallel()

	lp := LogSoftmax([]float32{1000, 1000}, 1)
	for _, v := range lp {
		if math.IsNaN(v) || math.Abs(v-math.Log(0.5)) > 1e-9 {
			t.Fatalf("unstable log-softmax: %v", lp)
		}
	}
}

func TestShortlistEmpty(t *testing.T) {
	t.Parallel()

	ids, lps := Shortlist(nil, Config{K: 3})
	if ids != nil || lps != nil {
		t.Fatalf("expected nil shortlist, got %v %v", ids, lps)
	}
}
