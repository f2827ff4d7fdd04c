package main

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/llamachat/internal/logger"
)

func askCmd() *cli.Command {
	var prompt string

	return &cli.Command{
		Name:      "ask",
		Usage:     "Send one prompt and stream the reply to stdout",
		ArgsUsage: "[prompt]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "prompt",
				Aliases:     []string{"p"},
				Usage:       "prompt text (default: the positional arguments)",
				Destination: &prompt,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if strings.TrimSpace(prompt) == "" {
				prompt = strings.Join(cmd.Args().Slice(), " ")
			}
			if strings.TrimSpace(prompt) == "" {
				return exitError(errors.New("--prompt or a positional prompt is required"))
			}

			env, err := openSession(logger.FromContext(ctx))
			if err != nil {
				return exitError(err)
			}
			defer func() { _ = env.ctl.Close() }()

			if err := env.loadModel(); err != nil {
				return exitError(err)
			}

			env.ctl.UpdateDraft(prompt)
			// The reply placeholder follows the echoed prompt.
			from := len(env.ctl.Snapshot()) + 1
			if err := env.ctl.Send(); err != nil {
				return exitError(err)
			}
			entries, err := follow(ctx, env.ctl, from, 1, os.Stdout)
			if err != nil {
				return exitError(err)
			}
			if len(entries) > 1 {
				return exitError(errors.New(entries[len(entries)-1]))
			}
			return nil
		},
	}
}
