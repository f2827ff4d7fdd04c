package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/llamachat/internal/logger"
)

func benchCmd() *cli.Command {
	var args benchArgs

	return &cli.Command{
		Name:  "bench",
		Usage: "Load the model and run the two-phase benchmark",
		Description: "Runs a warm-up with the given parameters. When it finishes within the\n" +
			"configured limit, a fixed-size main benchmark follows.",
		Flags: benchFlags(&args),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			params, err := args.params(appConfig.warmupParams())
			if err != nil {
				return exitError(err)
			}
			log := logger.FromContext(ctx)

			env, err := openSession(log)
			if err != nil {
				return exitError(err)
			}
			defer func() { _ = env.ctl.Close() }()

			if err := env.loadModel(); err != nil {
				return exitError(err)
			}

			log.Info("starting benchmark", "params", params.String())
			from := len(env.ctl.Snapshot())
			if err := env.ctl.Benchmark(params.PP, params.TG, params.PL, params.NR); err != nil {
				return exitError(err)
			}
			_, err = follow(ctx, env.ctl, from, 0, os.Stdout)
			return exitError(err)
		},
	}
}
