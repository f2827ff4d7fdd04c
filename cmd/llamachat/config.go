package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/llamachat/internal/bench"
)

// Config represents the llamachat configuration file
// (~/.config/llamachat/config.yaml). Pointer fields distinguish "not set"
// from zero values.
type Config struct {
	StorageRoot string `yaml:"storage_root"`
	ModelFile   string `yaml:"model_file"`

	// Engine
	EngineURL      string         `yaml:"engine_url"`
	RequestTimeout *time.Duration `yaml:"request_timeout"`

	// Benchmark protocol
	WarmupLimit      *time.Duration `yaml:"warmup_limit"`
	MainBenchmark    *bench.Params  `yaml:"main_benchmark"`
	DefaultBenchmark *bench.Params  `yaml:"default_benchmark"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

var appConfig Config

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "llamachat", "config.yaml")
}

// LoadConfig reads the config file at path, or the default location when
// path is empty. A missing file yields a zero Config; a malformed one is an
// error.
func LoadConfig(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = configPath()
	}
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// validate rejects negative benchmark fields. Zero fields are unset.
func (cfg Config) validate() error {
	for _, b := range []struct {
		key string
		p   *bench.Params
	}{
		{"main_benchmark", cfg.MainBenchmark},
		{"default_benchmark", cfg.DefaultBenchmark},
	} {
		if b.p == nil {
			continue
		}
		for _, f := range [...]struct {
			name string
			v    int
		}{{"pp", b.p.PP}, {"tg", b.p.TG}, {"pl", b.p.PL}, {"nr", b.p.NR}} {
			if f.v < 0 {
				return fmt.Errorf("%s.%s must be positive, got %d", b.key, f.name, f.v)
			}
		}
	}
	return nil
}

// applyGlobalConfig applies config file defaults to the global flags that
// were not set on the command line or through the environment.
func applyGlobalConfig(c *cli.Command, cfg Config) {
	if cfg.StorageRoot != "" && !c.IsSet("storage-root") {
		storageRoot = cfg.StorageRoot
	}
	if cfg.ModelFile != "" && !c.IsSet("model-file") {
		modelFile = cfg.ModelFile
	}
	if cfg.EngineURL != "" && !c.IsSet("engine-url") {
		engineURL = cfg.EngineURL
	}
	if cfg.RequestTimeout != nil && !c.IsSet("request-timeout") {
		requestTimeout = *cfg.RequestTimeout
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// benchConfig returns the protocol constants with config overrides.
func (cfg Config) benchConfig() bench.Config {
	out := bench.DefaultConfig()
	if cfg.WarmupLimit != nil && *cfg.WarmupLimit > 0 {
		out.WarmupLimit = *cfg.WarmupLimit
	}
	if cfg.MainBenchmark != nil {
		out.Main = out.Main.Overlay(*cfg.MainBenchmark)
	}
	return out
}

// warmupParams returns the default warm-up parameters with config
// overrides.
func (cfg Config) warmupParams() bench.Params {
	if cfg.DefaultBenchmark != nil {
		return bench.DefaultWarmup().Overlay(*cfg.DefaultBenchmark)
	}
	return bench.DefaultWarmup()
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}
