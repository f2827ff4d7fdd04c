package main

import (
	"io"
	"log/slog"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/llamachat/internal/logger"
)

const (
	envHome      = "LLAMACHAT_HOME"
	envEngineURL = "LLAMACHAT_ENGINE_URL"

	defaultModelFile = "llama-160m-chat-v1.q8_0.gguf"
	defaultEngineURL = "http://127.0.0.1:8080"
)

var (
	configFile     string
	storageRoot    string
	modelFile      string
	engineURL      string
	requestTimeout time.Duration
	logLevel       string
	logFormat      string
	debug          bool
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config.yaml (default: ~/.config/llamachat/config.yaml)",
			Destination: &configFile,
		},
		&cli.StringFlag{
			Name:        "storage-root",
			Aliases:     []string{"home"},
			Usage:       "directory holding the model file and logs",
			Sources:     cli.EnvVars(envHome),
			Destination: &storageRoot,
		},
		&cli.StringFlag{
			Name:        "model-file",
			Aliases:     []string{"m"},
			Usage:       "model file name under the storage root, or an absolute path",
			Value:       defaultModelFile,
			Destination: &modelFile,
		},
		&cli.StringFlag{
			Name:        "engine-url",
			Usage:       "base URL of the inference server",
			Value:       defaultEngineURL,
			Sources:     cli.EnvVars(envEngineURL),
			Destination: &engineURL,
		},
		&cli.DurationFlag{
			Name:        "request-timeout",
			Usage:       "timeout for engine probes",
			Value:       10 * time.Second,
			Destination: &requestTimeout,
		},
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

func benchFlags(p *benchArgs) []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "pp", Usage: "prompt tokens of the warm-up run", Destination: &p.pp},
		&cli.IntFlag{Name: "tg", Usage: "generated tokens of the warm-up run", Destination: &p.tg},
		&cli.IntFlag{Name: "pl", Usage: "parallel sequences of the warm-up run", Destination: &p.pl},
		&cli.IntFlag{Name: "nr", Usage: "repetitions of the warm-up run", Destination: &p.nr},
	}
}

func loadFlag(dst *bool) cli.Flag {
	return &cli.BoolFlag{
		Name:        "load",
		Usage:       "load the model on start",
		Destination: dst,
	}
}

func newLogger(w io.Writer) logger.Logger {
	level := logger.ParseLevel(logLevel)
	if debug {
		level = slog.LevelDebug
	}
	return logger.ForFormat(w, logFormat, level)
}
