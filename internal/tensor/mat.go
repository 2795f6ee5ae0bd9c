package tensor

import (
	"errors"
	"fmt"
	"math/rand"
)

var (
	errNegativeDim  = errors.New("tensor: negative dimension for matrix")
	errDataMismatch = errors.New("tensor: data length mismatch")
)

// Mat represents a dense row-major matrix of float32 values.
//
// R and C represent the number of rows and columns respectively. Data holds
// the flattened matrix values, row after row. The JSON form is the one used
// by checkpoint weight files.
//
// Mat does not perform any memory safety beyond the checks performed by Go's
// slice types; out-of-range indices will panic.
type Mat struct {
	R    int       `json:"rows"`
	C    int       `json:"cols"`
	Data []float32 `json:"data"`
}

// NewMat allocates a zeroed r x c matrix.
func NewMat(r, c int) Mat {
	if r < 0 || c < 0 {
		panic("negative dimension for matrix")
	}
	return Mat{
		R:    r,
		C:    c,
		Data: make([]float32, r*c),
	}
}

// NewMatFromData wraps data as an r x c matrix without copying.
func NewMatFromData(r, c int, data []float32) (Mat, error) {
	m := Mat{R: r, C: c, Data: data}
	if err := m.Validate(); err != nil {
		return Mat{}, err
	}
	return m, nil
}

// Validate checks that the shape agrees with the backing slice, which is
// what a decoded weight file has to be checked for.
func (m *Mat) Validate() error {
	if m.R < 0 || m.C < 0 {
		return errNegativeDim
	}
	if len(m.Data) != m.R*m.C {
		return fmt.Errorf("%w: %dx%d needs %d values, have %d", errDataMismatch, m.R, m.C, m.R*m.C, len(m.Data))
	}
	return nil
}

// Row returns a view of the i-th row of the matrix. Modifications to the
// returned slice update the underlying matrix values.
func (m *Mat) Row(i int) []float32 {
	if i < 0 || i >= m.R {
		panic("row index out of range")
	}
	start := i * m.C
	return m.Data[start : start+m.C]
}

// FillRand fills m with values drawn uniformly from [-scale, scale) using a
// source seeded with seed, so the same seed always yields the same weights.
func FillRand(m *Mat, seed int64, scale float32) {
	rng := rand.New(rand.NewSource(seed))
	for i := range m.Data {
		m.Data[i] = (rng.Float32()*2 - 1) * scale
	}
}
