package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/captioner/internal/checkpoint"
	"github.com/samcharles93/captioner/internal/logger"
	"github.com/samcharles93/captioner/internal/vocab"
)

func newCheckpointCmd() *cli.Command {
	var (
		name        string
		vocabFile   string
		minCount    int64
		hidden      int64
		featureSize int64
		seed        int64
		format      string
		force       bool
	)

	return &cli.Command{
		Name:  "new-checkpoint",
		Usage: "Create a randomly initialised checkpoint",
		Flags: append(rootFlags(),
			&cli.StringFlag{
				Name:        "name",
				Usage:       "checkpoint name (directory under the checkpoints dir)",
				Required:    true,
				Destination: &name,
			},
			&cli.StringFlag{
				Name:        "vocab-file",
				Usage:       "vocab.json word list, or a text file with one caption per line",
				Required:    true,
				Destination: &vocabFile,
			},
			&cli.Int64Flag{
				Name:        "min-count",
				Usage:       "drop caption words seen fewer times (text vocab files only)",
				Value:       1,
				Destination: &minCount,
			},
			&cli.Int64Flag{
				Name:        "hidden",
				Usage:       "decoder hidden size",
				Value:       64,
				Destination: &hidden,
			},
			&cli.Int64Flag{
				Name:        "feature-size",
				Usage:       "length of the image feature vectors",
				Value:       512,
				Destination: &featureSize,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "weight initialisation seed",
				Value:       1,
				Destination: &seed,
			},
			&cli.StringFlag{
				Name:        "weights-format",
				Usage:       "weights file format (json, safetensors)",
				Value:       "json",
				Destination: &format,
			},
			&cli.BoolFlag{
				Name:        "force",
				Usage:       "overwrite an existing checkpoint",
				Destination: &force,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			roots, err := resolveRoots(cmd, appConfig)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
				return cli.Exit(fmt.Sprintf("error: invalid checkpoint name %q", name), 1)
			}
			dir := filepath.Join(roots.Checkpoints, name)
			if _, err := os.Stat(filepath.Join(dir, checkpoint.ManifestName)); err == nil && !force {
				return cli.Exit(fmt.Sprintf("error: checkpoint %s already exists; use --force to overwrite", dir), 1)
			}

			v, err := loadVocab(vocabFile, int(minCount))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			ck, err := checkpoint.New(name, v, int(hidden), int(featureSize), seed)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			switch format {
			case "json":
			case "safetensors":
				ck.Manifest.Weights = checkpoint.WeightsSafetensors
			default:
				return cli.Exit(fmt.Sprintf("error: unknown weights format %q (want json or safetensors)", format), 1)
			}
			if err := checkpoint.Save(dir, ck); err != nil {
				return cli.Exit(fmt.Sprintf("error: save checkpoint: %v", err), 1)
			}

			log.Info("checkpoint created",
				"name", name,
				"dir", ck.Dir,
				"vocab", v.Size(),
				"hidden", hidden,
				"feature_size", featureSize,
				"weights", ck.Manifest.Weights,
			)
			return nil
		},
	}
}

// loadVocab reads a JSON word list, or builds a vocabulary from a text file
// holding one caption per line.
func loadVocab(path string, minCount int) (*vocab.Vocab, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return vocab.Load(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var captions []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			captions = append(captions, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(captions) == 0 {
		return nil, errors.New("vocab file holds no captions")
	}
	return vocab.Build(captions, minCount), nil
}
