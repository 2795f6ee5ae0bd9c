package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samcharles93/captioner/internal/beam"
	"github.com/samcharles93/captioner/internal/caption"
	"github.com/samcharles93/captioner/internal/checkpoint"
	"github.com/samcharles93/captioner/internal/decoder"
	"github.com/samcharles93/captioner/internal/logger"
	"github.com/samcharles93/captioner/internal/validation"
)

// CheckpointProvider resolves the checkpoint a request names.
type CheckpointProvider interface {
	Get(ctx context.Context, name string) (*checkpoint.Checkpoint, error)
	List() ([]checkpoint.Info, error)
}

// CaptionService turns caption requests into beam searches.
type CaptionService struct {
	provider    CheckpointProvider
	observer    beam.Observer
	parallelism int
	clock       func() time.Time
}

// ServiceOption configures a CaptionService.
type ServiceOption func(*CaptionService)

// WithObserver reports search metrics to obs.
func WithObserver(obs beam.Observer) ServiceOption {
	return func(s *CaptionService) {
		s.observer = obs
	}
}

// WithParallelism expands up to n branches of a search step concurrently.
func WithParallelism(n int) ServiceOption {
	return func(s *CaptionService) {
		s.parallelism = n
	}
}

// NewCaptionService captions requests with checkpoints from provider.
func NewCaptionService(provider CheckpointProvider, opts ...ServiceOption) *CaptionService {
	s := &CaptionService{
		provider:    provider,
		parallelism: 1,
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CaptionService) Models() ([]checkpoint.Info, error) {
	return s.provider.List()
}

// CreateCaption validates req, loads its checkpoint and runs the search.
// Client mistakes wrap ErrInvalidRequest or ErrModelNotFound.
func (s *CaptionService) CreateCaption(ctx context.Context, req *CaptionRequest) (*CaptionResponse, error) {
	if err := validation.Struct(req); err != nil {
		return nil, newInvalidRequest(err.Error())
	}

	ck, err := s.provider.Get(ctx, req.Model)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return nil, newModelNotFound(err.Error())
		}
		return nil, err
	}
	if want := ck.Model.Config().Features; len(req.Features) != want {
		return nil, newInvalidRequest(fmt.Sprintf("features: expected %d values for model %q, got %d", want, ck.Name(), len(req.Features)))
	}

	opts := mergeOptions(caption.OptionsFromDefaults(ck.Manifest.Defaults), req)
	captionOpts := []caption.Option{caption.WithParallelism(s.parallelism)}
	if s.observer != nil {
		captionOpts = append(captionOpts, caption.WithObserver(s.observer))
	}
	captioner, err := caption.FromCheckpoint(ck, captionOpts...)
	if err != nil {
		return nil, err
	}

	captions, err := captioner.Caption(ctx, req.Features, opts)
	if err != nil {
		switch {
		case errors.Is(err, beam.ErrInvalidConfig), errors.Is(err, caption.ErrInvalidOptions), errors.Is(err, decoder.ErrShape):
			return nil, newInvalidRequest(err.Error())
		}
		return nil, err
	}

	resp := &CaptionResponse{
		ID:        newCaptionID(),
		Object:    "caption",
		CreatedAt: s.clock().Unix(),
		Model:     ck.Name(),
		ImageID:   req.ImageID,
		Mode:      beam.Params{Probabilistic: opts.Probabilistic}.Mode(),
		BeamSize:  opts.BeamSize,
		MaxLen:    opts.MaxLen,
		Captions:  captions,
	}
	logger.FromContext(ctx).Info("caption created",
		"id", resp.ID,
		"model", resp.Model,
		"mode", resp.Mode,
		"beam_size", resp.BeamSize,
		"max_len", resp.MaxLen,
	)
	return resp, nil
}

func mergeOptions(o caption.Options, req *CaptionRequest) caption.Options {
	if req.BeamSize != nil {
		o.BeamSize = *req.BeamSize
	}
	if req.MaxLen != nil {
		o.MaxLen = *req.MaxLen
	}
	if req.CandidatesPerStep != nil {
		o.CandidatesPerStep = *req.CandidatesPerStep
	}
	if req.Temperature != nil {
		o.Temperature = *req.Temperature
	}
	o.Probabilistic = req.Probabilistic
	o.Seed = req.Seed
	o.Renormalize = req.Renormalize
	return o
}
