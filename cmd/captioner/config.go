package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/captioner/internal/caption"
	"github.com/samcharles93/captioner/internal/logger"
	"github.com/samcharles93/captioner/internal/paths"
	"github.com/samcharles93/captioner/internal/validation"
)

// Config represents the captioner configuration file
// (~/.config/captioner/config.yaml). Pointer fields distinguish "not set"
// from zero values.
type Config struct {
	DataDir        string `yaml:"data_dir"`
	CheckpointsDir string `yaml:"checkpoints_dir"`
	Checkpoint     string `yaml:"checkpoint"`

	// Search defaults, applied over the checkpoint's own defaults.
	BeamSize          *int     `yaml:"beam_size" validate:"omitempty,min=1,max=64"`
	MaxLen            *int     `yaml:"max_len" validate:"omitempty,min=0,max=256"`
	CandidatesPerStep *int     `yaml:"candidates_per_step" validate:"omitempty,min=0"`
	Temperature       *float64 `yaml:"temperature" validate:"omitempty,gte=0"`
	Seed              *int64   `yaml:"seed"`
	Parallelism       *int     `yaml:"parallelism" validate:"omitempty,min=1"`

	// Output
	LogLevel  string `yaml:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
	LogFormat string `yaml:"log_format" validate:"omitempty,oneof=pretty json text"`

	// Server
	ServerAddress string `yaml:"server_address"`
	StoreLimit    *int   `yaml:"store_limit" validate:"omitempty,min=0"`
}

// appConfig is loaded once by setup before any command runs.
var appConfig Config

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "captioner", "config.yaml")
}

// LoadConfig reads the config file at path. A missing file yields a zero
// Config.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	if err := validation.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// setup loads the config file and installs the logger on the context.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return ctx, err
	}
	appConfig = cfg
	applyLogConfig(cmd, cfg)

	level := logLevel
	if debug {
		level = "debug"
	}
	w := cmd.Root().ErrWriter
	if w == nil {
		w = os.Stderr
	}
	log, err := logger.Setup(w, level, logFormat)
	if err != nil {
		return ctx, err
	}
	return logger.WithContext(ctx, log), nil
}

func applyLogConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// resolveRoots applies config defaults to the root flags when they were not
// set and resolves what is still missing from the environment.
func resolveRoots(c *cli.Command, cfg Config) (paths.Roots, error) {
	r := paths.Roots{Data: dataDir, Checkpoints: checkpointsDir}
	if cfg.DataDir != "" && !c.IsSet("data-dir") {
		r.Data = cfg.DataDir
	}
	if cfg.CheckpointsDir != "" && !c.IsSet("checkpoints-dir") {
		r.Checkpoints = cfg.CheckpointsDir
	}
	return paths.Resolve(r)
}

func applyCheckpointConfig(c *cli.Command, cfg Config) {
	if cfg.Checkpoint != "" && !c.IsSet("checkpoint") {
		checkpointName = cfg.Checkpoint
	}
}

// applySearchConfig layers explicitly set flags, then the config file, over
// the checkpoint's defaults in o.
func applySearchConfig(c *cli.Command, cfg Config, s searchOptions, o caption.Options) caption.Options {
	switch {
	case c.IsSet("beam-size"):
		o.BeamSize = int(s.beamSize)
	case cfg.BeamSize != nil:
		o.BeamSize = *cfg.BeamSize
	}
	switch {
	case c.IsSet("max-len"):
		o.MaxLen = int(s.maxLen)
	case cfg.MaxLen != nil:
		o.MaxLen = *cfg.MaxLen
	}
	switch {
	case c.IsSet("candidates"):
		o.CandidatesPerStep = int(s.candidates)
	case cfg.CandidatesPerStep != nil:
		o.CandidatesPerStep = *cfg.CandidatesPerStep
	}
	switch {
	case c.IsSet("temperature"):
		o.Temperature = s.temperature
	case cfg.Temperature != nil:
		o.Temperature = *cfg.Temperature
	}
	switch {
	case c.IsSet("seed"):
		seed := s.seed
		o.Seed = &seed
	case cfg.Seed != nil:
		seed := *cfg.Seed
		o.Seed = &seed
	}
	o.Probabilistic = s.probabilistic
	o.Renormalize = s.renormalize
	return o
}

func parallelism(c *cli.Command, cfg Config, s searchOptions) int {
	if cfg.Parallelism != nil && !c.IsSet("parallelism") {
		return *cfg.Parallelism
	}
	return int(s.parallelism)
}
