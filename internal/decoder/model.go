// Package decoder implements a small recurrent caption decoder.
//
// An image feature vector is projected into the initial hidden state. Each
// step embeds one token, mixes it into the hidden state through a tanh
// recurrence and projects the result onto the vocabulary:
//
//	h0 = tanh(P·f + bp)
//	h' = tanh(R·h + E[tok] + bh)
//	logits = O·h' + bo
package decoder

import (
	"errors"
	"fmt"
	"slices"

	"github.com/samcharles93/captioner/internal/tensor"
)

var ErrShape = errors.New("decoder: shape mismatch")

// Config holds the decoder dimensions.
type Config struct {
	Vocab    int `json:"vocab" yaml:"vocab"`
	Hidden   int `json:"hidden" yaml:"hidden"`
	Features int `json:"features" yaml:"features"`
}

func (c Config) validate() error {
	if c.Vocab <= 0 || c.Hidden <= 0 || c.Features <= 0 {
		return fmt.Errorf("%w: dimensions must be positive, got vocab=%d hidden=%d features=%d",
			ErrShape, c.Vocab, c.Hidden, c.Features)
	}
	return nil
}

// Weights are the decoder parameters in their on-disk form.
type Weights struct {
	Project     tensor.Mat `json:"project"`      // [Hidden x Features]
	ProjectBias []float32  `json:"project_bias"` // [Hidden]
	Embed       tensor.Mat `json:"embed"`        // [Vocab x Hidden]
	Recur       tensor.Mat `json:"recur"`        // [Hidden x Hidden]
	HiddenBias  []float32  `json:"hidden_bias"`  // [Hidden]
	Out         tensor.Mat `json:"out"`          // [Vocab x Hidden]
	OutBias     []float32  `json:"out_bias"`     // [Vocab]
}

// Config derives the dimensions from the weight shapes.
func (w *Weights) Config() Config {
	return Config{Vocab: w.Embed.R, Hidden: w.Embed.C, Features: w.Project.C}
}

func (w *Weights) validate() error {
	cfg := w.Config()
	if err := cfg.validate(); err != nil {
		return err
	}
	mats := []struct {
		name string
		m    *tensor.Mat
		r, c int
	}{
		{"project", &w.Project, cfg.Hidden, cfg.Features},
		{"embed", &w.Embed, cfg.Vocab, cfg.Hidden},
		{"recur", &w.Recur, cfg.Hidden, cfg.Hidden},
		{"out", &w.Out, cfg.Vocab, cfg.Hidden},
	}
	for _, m := range mats {
		if err := m.m.Validate(); err != nil {
			return fmt.Errorf("%s: %w", m.name, err)
		}
		if m.m.R != m.r || m.m.C != m.c {
			return fmt.Errorf("%w: %s is %dx%d, want %dx%d", ErrShape, m.name, m.m.R, m.m.C, m.r, m.c)
		}
	}
	vecs := []struct {
		name string
		v    []float32
		n    int
	}{
		{"project_bias", w.ProjectBias, cfg.Hidden},
		{"hidden_bias", w.HiddenBias, cfg.Hidden},
		{"out_bias", w.OutBias, cfg.Vocab},
	}
	for _, v := range vecs {
		if len(v.v) != v.n {
			return fmt.Errorf("%w: %s has %d values, want %d", ErrShape, v.name, len(v.v), v.n)
		}
	}
	return nil
}

// Model is a loaded decoder. It only reads its weights, so one Model can
// serve concurrent searches.
type Model struct {
	cfg Config
	w   Weights
}

// State is the hidden state threaded through a search. It is never
// modified after creation.
type State struct {
	h []float32
}

// Hidden returns a copy of the hidden activations.
func (s State) Hidden() []float32 {
	return slices.Clone(s.h)
}

// NewRandom returns a model with weights drawn from seed. Biases start at zero.
func NewRandom(cfg Config, seed int64) (*Model, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	w := Weights{
		Project:     tensor.NewMat(cfg.Hidden, cfg.Features),
		ProjectBias: make([]float32, cfg.Hidden),
		Embed:       tensor.NewMat(cfg.Vocab, cfg.Hidden),
		Recur:       tensor.NewMat(cfg.Hidden, cfg.Hidden),
		HiddenBias:  make([]float32, cfg.Hidden),
		Out:         tensor.NewMat(cfg.Vocab, cfg.Hidden),
		OutBias:     make([]float32, cfg.Vocab),
	}
	tensor.FillRand(&w.Project, seed+11, 0.5)
	tensor.FillRand(&w.Embed, seed+23, 0.5)
	tensor.FillRand(&w.Recur, seed+37, 0.5)
	tensor.FillRand(&w.Out, seed+41, 1)
	return &Model{cfg: cfg, w: w}, nil
}

// FromWeights validates w and wraps it in a Model.
func FromWeights(w Weights) (*Model, error) {
	if err := w.validate(); err != nil {
		return nil, err
	}
	return &Model{cfg: w.Config(), w: w}, nil
}

func (m *Model) Config() Config { return m.cfg }

// Weights returns the parameters backing the model. Callers must not modify them.
func (m *Model) Weights() *Weights { return &m.w }

// Init projects an image feature vector into the initial hidden state.
func (m *Model) Init(features []float32) (State, error) {
	if len(features) != m.cfg.Features {
		return State{}, fmt.Errorf("%w: got %d features, want %d", ErrShape, len(features), m.cfg.Features)
	}
	h := make([]float32, m.cfg.Hidden)
	tensor.Affine(h, &m.w.Project, features, m.w.ProjectBias)
	tensor.Tanh(h)
	return State{h: h}, nil
}

// Step feeds tok into s and returns the vocabulary logits together with the
// new state. s is left untouched.
func (m *Model) Step(s State, tok int) ([]float32, State, error) {
	if tok < 0 || tok >= m.cfg.Vocab {
		return nil, State{}, fmt.Errorf("%w: token %d outside vocabulary of %d", ErrShape, tok, m.cfg.Vocab)
	}
	if len(s.h) != m.cfg.Hidden {
		return nil, State{}, fmt.Errorf("%w: state has %d units, want %d", ErrShape, len(s.h), m.cfg.Hidden)
	}

	h := make([]float32, m.cfg.Hidden)
	tensor.Affine(h, &m.w.Recur, s.h, m.w.Embed.Row(tok), m.w.HiddenBias)
	tensor.Tanh(h)

	logits := make([]float32, m.cfg.Vocab)
	tensor.Affine(logits, &m.w.Out, h, m.w.OutBias)
	return logits, State{h: h}, nil
}
