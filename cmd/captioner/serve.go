package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/captioner/internal/api"
	"github.com/samcharles93/captioner/internal/checkpoint"
	"github.com/samcharles93/captioner/internal/logger"
	"github.com/samcharles93/captioner/internal/metrics"
	"github.com/samcharles93/captioner/internal/webui"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		storeLimit  int64
		workers     int64
		ui          bool
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the caption REST API",
		Flags: append(checkpointFlags(),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.Int64Flag{
				Name:        "store-limit",
				Usage:       "captions kept for GET /v1/captions/:id (0 = unlimited)",
				Value:       1024,
				Destination: &storeLimit,
			},
			&cli.Int64Flag{
				Name:        "parallelism",
				Usage:       "branches expanded concurrently per search step",
				Value:       1,
				Destination: &workers,
			},
			&cli.BoolFlag{
				Name:        "ui",
				Usage:       "serve the caption playground under /ui",
				Value:       true,
				Destination: &ui,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			roots, err := resolveRoots(cmd, appConfig)
			if err != nil {
				return err
			}
			applyCheckpointConfig(cmd, appConfig)
			if appConfig.ServerAddress != "" && !cmd.IsSet("addr") {
				addr = appConfig.ServerAddress
			}
			if appConfig.StoreLimit != nil && !cmd.IsSet("store-limit") {
				storeLimit = int64(*appConfig.StoreLimit)
			}
			if appConfig.Parallelism != nil && !cmd.IsSet("parallelism") {
				workers = int64(*appConfig.Parallelism)
			}

			provider := checkpoint.NewProvider(checkpoint.ProviderConfig{
				Root:    roots.Checkpoints,
				Default: checkpointName,
			})
			service := api.NewCaptionService(provider,
				api.WithObserver(metrics.Observer{}),
				api.WithParallelism(int(workers)),
			)
			server := api.NewServer(api.NewCaptionStore(int(storeLimit)), service)

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
				return func(c *echo.Context) error {
					req := c.Request()
					c.SetRequest(req.WithContext(logger.WithContext(req.Context(), log)))
					return next(c)
				}
			})
			server.Register(e)
			if ui {
				webui.Register(e)
			}

			log.Info("starting server", "address", addr, "checkpoints", roots.Checkpoints)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
