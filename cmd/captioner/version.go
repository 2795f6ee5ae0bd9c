package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/captioner/internal/version"
)

func versionCmd() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "short", Usage: "print only the version and commit"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			out := cmd.Root().Writer
			if out == nil {
				out = os.Stdout
			}
			info := version.Resolve()
			if cmd.Bool("short") {
				_, _ = fmt.Fprintln(out, info.String())
				return nil
			}
			_, _ = fmt.Fprintf(out, "version:    %s\n", info.Version)
			if info.Commit != "" {
				_, _ = fmt.Fprintf(out, "commit:     %s\n", info.Commit)
				if info.Modified {
					_, _ = fmt.Fprintln(out, "modified:   true")
				}
			}
			if info.BuildTime != "" {
				_, _ = fmt.Fprintf(out, "build time: %s\n", info.BuildTime)
			}
			if info.GoVersion != "" {
				_, _ = fmt.Fprintf(out, "go:         %s\n", info.GoVersion)
			}
			return nil
		},
	}
}
