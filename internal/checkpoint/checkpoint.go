// Package checkpoint stores and loads caption decoder bundles.
//
// A checkpoint is a directory holding a YAML manifest, the decoder weights
// and the vocabulary:
//
//	coco-small/
//	  checkpoint.yaml
//	  weights.json
//	  vocab.json
//
// Weights are stored as JSON or, when the manifest names a .safetensors
// file, in the safetensors format. File references in the manifest are resolved relative to the checkpoint
// directory.
package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/samcharles93/captioner/internal/decoder"
	"github.com/samcharles93/captioner/internal/validation"
	"github.com/samcharles93/captioner/internal/vocab"
	"github.com/samcharles93/captioner/internal/workdir"
)

// ManifestName is the manifest file inside a checkpoint directory.
const ManifestName = "checkpoint.yaml"

var (
	ErrNotFound = errors.New("checkpoint: not found")
	ErrMismatch = errors.New("checkpoint: manifest does not match its files")
)

// Defaults are the search parameters a checkpoint was tuned for.
type Defaults struct {
	BeamSize          int     `yaml:"beam_size" json:"beam_size" validate:"min=1,max=64"`
	MaxLen            int     `yaml:"max_len" json:"max_len" validate:"min=0,max=256"`
	CandidatesPerStep int     `yaml:"candidates_per_step" json:"candidates_per_step" validate:"min=0"`
	Temperature       float64 `yaml:"temperature" json:"temperature" validate:"gte=0"`
}

// DefaultSearch is used for manifests that do not set their own defaults.
var DefaultSearch = Defaults{BeamSize: 3, MaxLen: 16, Temperature: 1}

// Manifest is the checkpoint.yaml document.
type Manifest struct {
	Name      string         `yaml:"name" validate:"required"`
	Decoder   decoder.Config `yaml:"decoder"`
	Weights   string         `yaml:"weights" validate:"required"`
	Vocab     string         `yaml:"vocab" validate:"required"`
	Defaults  Defaults       `yaml:"defaults"`
	CreatedAt time.Time      `yaml:"created_at,omitempty"`
}

// Checkpoint is a loaded bundle.
type Checkpoint struct {
	Dir      string
	Manifest Manifest
	Model    *decoder.Model
	Vocab    *vocab.Vocab
}

func (c *Checkpoint) Name() string { return c.Manifest.Name }

// New creates a randomly initialised checkpoint around v. It is what a
// training run would start from and is enough to exercise the pipeline.
func New(name string, v *vocab.Vocab, hidden, featureSize int, seed int64) (*Checkpoint, error) {
	cfg := decoder.Config{Vocab: v.Size(), Hidden: hidden, Features: featureSize}
	model, err := decoder.NewRandom(cfg, seed)
	if err != nil {
		return nil, err
	}
	return &Checkpoint{
		Manifest: Manifest{
			Name:      name,
			Decoder:   cfg,
			Weights:   WeightsJSON,
			Vocab:     "vocab.json",
			Defaults:  DefaultSearch,
			CreatedAt: time.Now().UTC().Truncate(time.Second),
		},
		Model: model,
		Vocab: v,
	}, nil
}

// Load reads the checkpoint in dir.
func Load(dir string) (*Checkpoint, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s has no %s", ErrNotFound, dir, ManifestName)
		}
		return nil, err
	}
	if err := validation.Struct(&m); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", ManifestName, err)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	ck := &Checkpoint{Dir: abs, Manifest: m}
	err = workdir.Run(abs, func() error {
		v, err := vocab.Load(m.Vocab)
		if err != nil {
			return fmt.Errorf("load vocab: %w", err)
		}
		w, err := loadWeights(m.Weights)
		if err != nil {
			return fmt.Errorf("load weights: %w", err)
		}
		model, err := decoder.FromWeights(w)
		if err != nil {
			return fmt.Errorf("load weights: %w", err)
		}
		ck.Vocab, ck.Model = v, model
		return nil
	})
	if err != nil {
		return nil, err
	}

	if got := ck.Model.Config(); got != m.Decoder {
		return nil, fmt.Errorf("%w: weights are %+v, manifest says %+v", ErrMismatch, got, m.Decoder)
	}
	if ck.Vocab.Size() != m.Decoder.Vocab {
		return nil, fmt.Errorf("%w: vocab has %d tokens, decoder expects %d", ErrMismatch, ck.Vocab.Size(), m.Decoder.Vocab)
	}
	return ck, nil
}

// Save writes c into dir, creating it if needed, and records dir in c.Dir.
func Save(dir string, c *Checkpoint) error {
	if err := validation.Struct(&c.Manifest); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	raw, err := yaml.Marshal(&c.Manifest)
	if err != nil {
		return err
	}
	err = workdir.Run(dir, func() error {
		if err := c.Vocab.Save(c.Manifest.Vocab); err != nil {
			return fmt.Errorf("save vocab: %w", err)
		}
		if err := saveWeights(c.Manifest.Weights, c.Model.Weights()); err != nil {
			return fmt.Errorf("save weights: %w", err)
		}
		return os.WriteFile(ManifestName, raw, 0o644)
	})
	if err != nil {
		return err
	}
	c.Dir, err = filepath.Abs(dir)
	return err
}
