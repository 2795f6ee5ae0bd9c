package tensor

import "math"

// Affine sets dst = w·x + b₀ + b₁ + ... . dst needs w.R values, x needs w.C
// and every bias needs w.R.
func Affine(dst []float32, w *Mat, x []float32, biases ...[]float32) {
	if len(dst) < w.R || len(x) < w.C {
		panic("tensor: affine shape mismatch")
	}
	x = x[:w.C]
	for r := range w.R {
		row := w.Data[r*w.C : (r+1)*w.C]
		var acc float32
		for j, v := range row {
			acc += v * x[j]
		}
		for _, b := range biases {
			acc += b[r]
		}
		dst[r] = acc
	}
}

// Tanh applies tanh to x in place.
func Tanh(x []float32) {
	for i, v := range x {
		x[i] = float32(math.Tanh(float64(v)))
	}
}
