package tensor

import (
	"errors"
	"math"
	"testing"
)

func TestAffine(t *testing.T) {
	t.Parallel()

	w, err := NewMatFromData(2, 3, []float32{1, 0, -1, 0.5, 2, 0})
	if err != nil {
		t.Fatal(err)
	}
	x := []float32{2, 1, 4, 99} // trailing value ignored
	got := make([]float32, 2)
	Affine(got, &w, x, []float32{0.5, 0}, []float32{1, -1})
	want := []float32{2 - 4 + 0.5 + 1, 1 + 2 - 1}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Fatalf("row %d: got %f want %f", i, got[i], want[i])
		}
	}
}

func TestFillRandDeterministicAndBounded(t *testing.T) {
	t.Parallel()

	a := NewMat(4, 4)
	b := NewMat(4, 4)
	FillRand(&a, 9, 0.1)
	FillRand(&b, 9, 0.1)
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			t.Fatalf("same seed produced different values at %d", i)
		}
		if a.Data[i] < -0.1 || a.Data[i] >= 0.1 {
			t.Fatalf("value %f outside [-0.1, 0.1)", a.Data[i])
		}
	}
}

func TestNewMatFromData(t *testing.T) {
	t.Parallel()

	m, err := NewMatFromData(2, 3, []float32{1, 2, 3, 4, 5, 6})
	if err != nil {
		t.Fatalf("NewMatFromData: %v", err)
	}
	if row := m.Row(1); row[0] != 4 || row[2] != 6 {
		t.Fatalf("unexpected row %v", row)
	}
	if _, err := NewMatFromData(2, 2, []float32{1}); !errors.Is(err, errDataMismatch) {
		t.Fatalf("expected data mismatch, got %v", err)
	}
	if _, err := NewMatFromData(-1, 2, nil); !errors.Is(err, errNegativeDim) {
		t.Fatalf("expected negative dimension, got %v", err)
	}
}

func TestTanh(t *testing.T) {
	t.Parallel()

	x := []float32{0, 100, -100}
	Tanh(x)
	if x[0] != 0 || x[1] != 1 || x[2] != -1 {
		t.Fatalf("unexpected tanh values %v", x)
	}
}
