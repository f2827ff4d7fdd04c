package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/llamachat/internal/tui"
	"github.com/samcharles93/llamachat/internal/version"
)

func chatCmd() *cli.Command {
	var (
		logFile string
		load    bool
	)

	return &cli.Command{
		Name:  "chat",
		Usage: "Start the interactive chat front end",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "log file, relative to the storage root",
				Value:       "llamachat.log",
				Destination: &logFile,
			},
			loadFlag(&load),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			root, err := resolveStorageRoot(storageRoot)
			if err != nil {
				return exitError(err)
			}
			if !filepath.IsAbs(logFile) {
				logFile = filepath.Join(root, logFile)
			}
			f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return exitError(fmt.Errorf("open log file: %w", err))
			}
			defer func() { _ = f.Close() }()

			// The TUI owns the terminal; logs go to the file.
			log := newLogger(f)
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

			p := tui.NewProgram(env.ctl, tui.Options{
				ModelPath: env.modelPath,
				Bench:     appConfig.warmupParams(),
				Version:   version.String(),
			})
			go func() {
				<-ctx.Done()
				p.Quit()
			}()
			if _, err := p.Run(); err != nil {
				return exitError(err)
			}
			return nil
		},
	}
}
