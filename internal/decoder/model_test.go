package decoder

import (
	"errors"
	"math"
	"slices"
	"testing"
)

func testModel(t *testing.T) *Model {
	t.Helper()
	m, err := NewRandom(Config{Vocab: 8, Hidden: 6, Features: 5}, 5)
	if err != nil {
		t.Fatalf("NewRandom: %v", err)
	}
	return m
}

// TestStepMatchesNaive compares Step against a hand-computed reference for
// a single token.
func TestStepMatchesNaive(t *testing.T) {
	t.Parallel()

	m := testModel(t)
	s, err := m.Init([]float32{0.1, -0.2, 0.3, 0.4, -0.5})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	tok := 3
	logits, next, err := m.Step(s, tok)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}

	w := m.Weights()
	h0 := s.Hidden()
	h := make([]float64, 6)
	for i := range h {
		var sum float64
		for j := range h0 {
			sum += float64(w.Recur.Data[i*6+j]) * float64(h0[j])
		}
		sum += float64(w.Embed.Data[tok*6+i]) + float64(w.HiddenBias[i])
		h[i] = math.Tanh(sum)
	}
	for i, v := range next.Hidden() {
		if math.Abs(float64(v)-h[i]) > 1e-5 {
			t.Fatalf("hidden mismatch at %d: got %f want %f", i, v, h[i])
		}
	}
	for r := range logits {
		var sum float64
		for j := range h {
			sum += float64(w.Out.Data[r*6+j]) * h[j]
		}
		sum += float64(w.OutBias[r])
		if math.Abs(float64(logits[r])-sum) > 1e-4 {
			t.Fatalf("logit mismatch at %d: got %f want %f", r, logits[r], sum)
		}
	}
}

func TestStepLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	m := testModel(t)
	s, err := m.Init(make([]float32, 5))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	before := s.Hidden()
	if _, _, err := m.Step(s, 1); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if _, _, err := m.Step(s, 2); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if !slices.Equal(before, s.Hidden()) {
		t.Fatal("Step modified its input state")
	}
}

func TestNewRandomIsDeterministic(t *testing.T) {
	t.Parallel()

	a := testModel(t)
	b := testModel(t)
	if !slices.Equal(a.Weights().Out.Data, b.Weights().Out.Data) {
		t.Fatal("same seed produced different weights")
	}
}

func TestShapeErrors(t *testing.T) {
	t.Parallel()

	m := testModel(t)
	if _, err := m.Init(make([]float32, 4)); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape for feature size, got %v", err)
	}
	s, _ := m.Init(make([]float32, 5))
	if _, _, err := m.Step(s, 8); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape for token, got %v", err)
	}
	if _, _, err := m.Step(State{}, 0); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape for empty state, got %v", err)
	}
	if _, err := NewRandom(Config{Vocab: 0, Hidden: 1, Features: 1}, 1); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape for config, got %v", err)
	}
}

func TestFromWeightsValidates(t *testing.T) {
	t.Parallel()

	m := testModel(t)
	w := *m.Weights()
	if _, err := FromWeights(w); err != nil {
		t.Fatalf("FromWeights: %v", err)
	}

	bad := w
	bad.OutBias = bad.OutBias[:3]
	if _, err := FromWeights(bad); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape for bias, got %v", err)
	}

	bad = w
	bad.Recur.Data = bad.Recur.Data[:1]
	if _, err := FromWeights(bad); err == nil {
		t.Fatal("expected error for truncated matrix")
	}
}
