package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/llamachat/internal/api"
	"github.com/samcharles93/llamachat/internal/logger"
)

const defaultServerAddress = "127.0.0.1:8090"

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		load        bool
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the session over HTTP (JSON, SSE and websocket)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       defaultServerAddress,
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			loadFlag(&load),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyServeConfig(cmd, appConfig, &addr)
			log := logger.FromContext(ctx)

			env, err := openSession(log)
			if err != nil {
				return exitError(err)
			}
			defer func() { _ = env.ctl.Close() }()

			if load {
				if err := env.ctl.Load(env.modelPath); err != nil {
					return exitError(err)
				}
			}

			server := api.NewServer(env.ctl, api.Config{
				ModelPath: env.modelPath,
				Bench:     appConfig.warmupParams(),
				Logger:    log,
			})
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)

			log.Info("starting server", "address", addr, "session_id", env.ctl.ID())
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
