package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/captioner/internal/checkpoint"
	"github.com/samcharles93/captioner/internal/logger"
)

func modelsCmd() *cli.Command {
	return &cli.Command{
		Name:    "models",
		Aliases: []string{"ls", "list-models"},
		Usage:   "List checkpoints under the checkpoints dir",
		Flags:   rootFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			roots, err := resolveRoots(cmd, appConfig)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			infos, err := checkpoint.NewProvider(checkpoint.ProviderConfig{Root: roots.Checkpoints}).List()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if len(infos) == 0 {
				log.Info("no checkpoints found", "path", roots.Checkpoints)
				return nil
			}

			out := cmd.Root().Writer
			if out == nil {
				out = os.Stdout
			}
			_, _ = fmt.Fprintf(out, "Checkpoints in %s:\n\n", roots.Checkpoints)
			for _, info := range infos {
				d := info.Defaults
				_, _ = fmt.Fprintf(out, "  %-32s beam=%d max_len=%d candidates=%d\n",
					info.Name, d.BeamSize, d.MaxLen, d.CandidatesPerStep)
			}
			_, _ = fmt.Fprintf(out, "\n%d checkpoint(s) found\n", len(infos))
			return nil
		},
	}
}
