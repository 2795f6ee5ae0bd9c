package main

import "github.com/urfave/cli/v3"

var (
	configFile     string
	dataDir        string
	checkpointsDir string
	checkpointName string
	logLevel       string
	logFormat      string
	debug          bool
)

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:        "config",
		Usage:       "path to config.yaml",
		Value:       configPath(),
		Destination: &configFile,
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func rootFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "data-dir",
			Usage:       "dataset root (default $CAPTIONER_DATA_DIR or ~/.data/COCO)",
			Destination: &dataDir,
		},
		&cli.StringFlag{
			Name:        "checkpoints-dir",
			Usage:       "directory holding checkpoint directories (default <data-dir>/checkpoints)",
			Destination: &checkpointsDir,
		},
	}
}

func checkpointFlags() []cli.Flag {
	return append(rootFlags(),
		&cli.StringFlag{
			Name:        "checkpoint",
			Aliases:     []string{"c"},
			Usage:       "checkpoint name under the checkpoints dir, or a path",
			Destination: &checkpointName,
		},
	)
}

// searchOptions are the beam parameters shared by commands that caption.
type searchOptions struct {
	beamSize      int64
	maxLen        int64
	probabilistic bool
	seed          int64
	candidates    int64
	temperature   float64
	renormalize   bool
	parallelism   int64
}

func searchFlags(o *searchOptions) []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "beam-size",
			Aliases:     []string{"k"},
			Usage:       "number of captions kept per step (default from checkpoint)",
			Destination: &o.beamSize,
		},
		&cli.Int64Flag{
			Name:        "max-len",
			Aliases:     []string{"n"},
			Usage:       "caption length in tokens (default from checkpoint)",
			Destination: &o.maxLen,
		},
		&cli.BoolFlag{
			Name:        "probabilistic",
			Aliases:     []string{"p"},
			Usage:       "sample branches in proportion to their probability instead of keeping the best",
			Destination: &o.probabilistic,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "random seed for probabilistic search",
			Destination: &o.seed,
		},
		&cli.Int64Flag{
			Name:        "candidates",
			Usage:       "tokens proposed per decoder step (0 = whole vocabulary)",
			Destination: &o.candidates,
		},
		&cli.Float64Flag{
			Name:        "temperature",
			Aliases:     []string{"t"},
			Usage:       "decoder logit temperature",
			Destination: &o.temperature,
		},
		&cli.BoolFlag{
			Name:        "renormalize",
			Usage:       "scale caption probabilities to sum to 1 over the beam",
			Destination: &o.renormalize,
		},
		&cli.Int64Flag{
			Name:        "parallelism",
			Usage:       "branches expanded concurrently per step",
			Value:       1,
			Destination: &o.parallelism,
		},
	}
}
