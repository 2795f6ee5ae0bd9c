package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/captioner/internal/caption"
	"github.com/samcharles93/captioner/internal/checkpoint"
	"github.com/samcharles93/captioner/internal/features"
	"github.com/samcharles93/captioner/internal/logger"
)

type imageCaptions struct {
	ImageID  string            `json:"image_id"`
	Model    string            `json:"model"`
	Captions []caption.Caption `json:"captions"`
}

func captionCmd() *cli.Command {
	var (
		search       searchOptions
		featuresPath string
		split        string
		jsonOut      bool
	)

	flags := append(checkpointFlags(), searchFlags(&search)...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "features",
			Aliases:     []string{"f"},
			Usage:       "feature file (JSON vector, object or array of objects)",
			Destination: &featuresPath,
		},
		&cli.StringFlag{
			Name:        "split",
			Usage:       "read <data-dir>/<split>/features.json when --features is not set",
			Destination: &split,
		},
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "print one JSON object per image",
			Destination: &jsonOut,
		},
	)

	return &cli.Command{
		Name:  "caption",
		Usage: "Caption images from extracted feature vectors",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			roots, err := resolveRoots(cmd, appConfig)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			applyCheckpointConfig(cmd, appConfig)

			path := strings.TrimSpace(featuresPath)
			if path == "" {
				if strings.TrimSpace(split) == "" {
					return cli.Exit("error: --features or --split is required", 1)
				}
				if path, err = roots.Features(split); err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
			}
			images, err := features.Load(path)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load features: %v", err), 1)
			}

			provider := checkpoint.NewProvider(checkpoint.ProviderConfig{
				Root:       roots.Checkpoints,
				Default:    checkpointName,
				AllowPaths: true,
			})
			ck, err := provider.Get(ctx, "")
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			captioner, err := caption.FromCheckpoint(ck, caption.WithParallelism(parallelism(cmd, appConfig, search)))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			opts := applySearchConfig(cmd, appConfig, search, caption.OptionsFromDefaults(ck.Manifest.Defaults))
			log.Info("captioning",
				"checkpoint", ck.Name(),
				"images", len(images),
				"beam_size", opts.BeamSize,
				"max_len", opts.MaxLen,
				"probabilistic", opts.Probabilistic,
			)

			out := cmd.Root().Writer
			if out == nil {
				out = os.Stdout
			}
			for _, img := range images {
				captions, err := captioner.Caption(ctx, img.Features, opts)
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return err
					}
					return cli.Exit(fmt.Sprintf("error: image %s: %v", img.ID, err), 1)
				}
				res := imageCaptions{ImageID: img.ID, Model: ck.Name(), Captions: captions}
				if jsonOut {
					err = writeJSONLine(out, res)
				} else {
					err = writeCaptions(out, res)
				}
				if err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func writeJSONLine(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

func writeCaptions(w io.Writer, res imageCaptions) error {
	if _, err := fmt.Fprintf(w, "%s\n", res.ImageID); err != nil {
		return err
	}
	for i, c := range res.Captions {
		text := c.Text
		if text == "" {
			text = "(empty)"
		}
		if _, err := fmt.Fprintf(w, "  %d. %s  (p=%.4g, log_p=%.4f)\n", i+1, text, c.Probability, c.LogProb); err != nil {
			return err
		}
	}
	return nil
}
