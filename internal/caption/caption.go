// Package caption generates image captions by running a beam search over a
// caption decoder.
package caption

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samcharles93/captioner/internal/beam"
	"github.com/samcharles93/captioner/internal/checkpoint"
	"github.com/samcharles93/captioner/internal/decoder"
	"github.com/samcharles93/captioner/internal/logger"
	"github.com/samcharles93/captioner/internal/logits"
	"github.com/samcharles93/captioner/internal/vocab"
)

// ErrInvalidOptions is wrapped by every Options validation failure.
var ErrInvalidOptions = errors.New("caption: invalid options")

// Options are the per-request generation settings.
type Options struct {
	BeamSize      int
	MaxLen        int
	Probabilistic bool
	// Seed fixes the sampling source in probabilistic mode.
	Seed *int64
	// CandidatesPerStep bounds how many tokens each decoder step proposes.
	// 0 proposes the whole vocabulary.
	CandidatesPerStep int
	// Temperature scales the decoder logits. 0 means 1.
	Temperature float64
	// Renormalize makes the returned probabilities sum to 1 over the beam.
	Renormalize bool
}

// OptionsFromDefaults seeds Options with a checkpoint's tuned parameters.
func OptionsFromDefaults(d checkpoint.Defaults) Options {
	return Options{
		BeamSize:          d.BeamSize,
		MaxLen:            d.MaxLen,
		CandidatesPerStep: d.CandidatesPerStep,
		Temperature:       d.Temperature,
	}
}

func (o Options) params() beam.Params {
	return beam.Params{BeamSize: o.BeamSize, MaxLen: o.MaxLen, Probabilistic: o.Probabilistic}
}

func (o Options) validate() error {
	if err := o.params().Validate(); err != nil {
		return err
	}
	if o.CandidatesPerStep < 0 {
		return fmt.Errorf("%w: candidates per step must not be negative, got %d", ErrInvalidOptions, o.CandidatesPerStep)
	}
	if o.Temperature < 0 {
		return fmt.Errorf("%w: temperature must not be negative, got %v", ErrInvalidOptions, o.Temperature)
	}
	return nil
}

// Caption is one generated caption.
type Caption struct {
	Text        string  `json:"text"`
	Tokens      []int   `json:"tokens"`
	Probability float64 `json:"probability"`
	LogProb     float64 `json:"log_prob"`
}

// Captioner pairs a decoder with its vocabulary. It is safe for concurrent use.
type Captioner struct {
	model       *decoder.Model
	vocab       *vocab.Vocab
	observer    beam.Observer
	parallelism int
}

// Option configures a Captioner.
type Option func(*Captioner)

// WithObserver instruments every search.
func WithObserver(obs beam.Observer) Option {
	return func(c *Captioner) {
		c.observer = obs
	}
}

// WithParallelism expands up to n branches of a step concurrently.
func WithParallelism(n int) Option {
	return func(c *Captioner) {
		c.parallelism = n
	}
}

// New pairs a decoder with the vocabulary it was trained on.
func New(model *decoder.Model, v *vocab.Vocab, opts ...Option) (*Captioner, error) {
	if model == nil || v == nil {
		return nil, errors.New("caption: model and vocabulary are required")
	}
	if got, want := v.Size(), model.Config().Vocab; got != want {
		return nil, fmt.Errorf("caption: vocabulary has %d tokens, decoder expects %d", got, want)
	}
	c := &Captioner{model: model, vocab: v, parallelism: 1}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FromCheckpoint builds a Captioner over a loaded checkpoint.
func FromCheckpoint(ck *checkpoint.Checkpoint, opts ...Option) (*Captioner, error) {
	return New(ck.Model, ck.Vocab, opts...)
}

// Vocab returns the vocabulary used to decode tokens.
func (c *Captioner) Vocab() *vocab.Vocab { return c.vocab }

// Builder adapts the decoder to the beam engine. The state of a branch is
// the decoder state before its last token was fed. Once a branch has emitted
// the end token it keeps proposing only the end token at log-probability 0,
// so finished captions ride through the remaining steps unchanged.
func (c *Captioner) Builder(cfg logits.Config) beam.Builder[int, decoder.State] {
	start, end := c.vocab.Start(), c.vocab.End()
	if cfg.Suppress == nil {
		cfg.Suppress = []int{c.vocab.Pad(), start}
	}
	return func(_ context.Context, content []int, s decoder.State) (beam.Step[int, decoder.State], error) {
		last := start
		if n := len(content); n > 0 {
			last = content[n-1]
			if last == end {
				return beam.Step[int, decoder.State]{Tokens: []int{end}, LogProbs: []float64{0}, Next: s}, nil
			}
		}
		out, next, err := c.model.Step(s, last)
		if err != nil {
			return beam.Step[int, decoder.State]{}, err
		}
		ids, lps := logits.Shortlist(out, cfg)
		return beam.Step[int, decoder.State]{Tokens: ids, LogProbs: lps, Next: next}, nil
	}
}

// Caption generates captions for one image feature vector. Results follow
// the order of the final beam.
func (c *Captioner) Caption(ctx context.Context, features []float32, o Options) ([]Caption, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}
	root, err := c.model.Init(features)
	if err != nil {
		return nil, err
	}

	engineOpts := []beam.Option{beam.WithParallelism(c.parallelism)}
	if c.observer != nil {
		engineOpts = append(engineOpts, beam.WithObserver(c.observer))
	}
	if o.Seed != nil {
		engineOpts = append(engineOpts, beam.WithSeed(*o.Seed))
	}
	if o.Renormalize {
		engineOpts = append(engineOpts, beam.WithFinalize(beam.FinalizeRenormalized))
	}
	build := c.Builder(logits.Config{K: o.CandidatesPerStep, Temperature: float32(o.Temperature)})
	engine, err := beam.New(build, engineOpts...)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	results, err := engine.Search(ctx, o.params(), root)
	if err != nil {
		return nil, err
	}

	captions := make([]Caption, len(results))
	for i, r := range results {
		text, err := c.vocab.Decode(r.Content)
		if err != nil {
			return nil, err
		}
		captions[i] = Caption{
			Text:        text,
			Tokens:      r.Content,
			Probability: r.Probability,
			LogProb:     r.LogProb,
		}
	}

	log := logger.FromContext(ctx)
	if len(captions) > 0 {
		log.Debug("captioned image",
			"mode", o.params().Mode(),
			"beam_size", o.BeamSize,
			"max_len", o.MaxLen,
			"best", captions[0].Text,
			"probability", captions[0].Probability,
			"elapsed", time.Since(start),
		)
	}
	return captions, nil
}
