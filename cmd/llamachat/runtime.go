package main

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/llamachat/internal/bench"
	"github.com/samcharles93/llamachat/internal/engine"
	"github.com/samcharles93/llamachat/internal/logger"
	"github.com/samcharles93/llamachat/internal/session"
	"github.com/samcharles93/llamachat/internal/version"
)

// runtimeEnv is what every session-driving command needs.
type runtimeEnv struct {
	root      string
	modelPath string
	ctl       *session.Controller
}

// openSession resolves the storage root and wires a controller to the
// inference server. Callers must Close the controller.
func openSession(log logger.Logger) (*runtimeEnv, error) {
	root, err := resolveStorageRoot(storageRoot)
	if err != nil {
		return nil, err
	}
	eng := engine.NewHTTP(engine.HTTPConfig{
		BaseURL:   engineURL,
		Timeout:   requestTimeout,
		UserAgent: version.UserAgent(),
	})
	ctl := session.New(eng, session.Options{
		Logger: log,
		Bench:  appConfig.benchConfig(),
		Transcript: []string{
			"Initializing...",
			"Storage root: " + root,
		},
	})
	env := &runtimeEnv{
		root:      root,
		modelPath: resolveModelPath(root, modelFile),
		ctl:       ctl,
	}
	log.Debug("session ready", "storage_root", root, "model", env.modelPath, "engine", engineURL)
	return env, nil
}

// loadModel loads the configured model and waits for the outcome. A failed
// load returns the transcript's failure entry.
func (env *runtimeEnv) loadModel() error {
	before := len(env.ctl.Snapshot())
	if err := env.ctl.Load(env.modelPath); err != nil {
		return err
	}
	env.ctl.Wait()
	if env.ctl.State() == session.Loaded {
		return nil
	}
	if entries := env.ctl.Snapshot(); len(entries) > before {
		return fmt.Errorf("load %s: %s", env.modelPath, entries[len(entries)-1])
	}
	return fmt.Errorf("load %s failed", env.modelPath)
}

type benchArgs struct {
	pp, tg, pl, nr int
}

// params fills unset (zero) fields from def.
func (a benchArgs) params(def bench.Params) (bench.Params, error) {
	p := def
	for _, f := range []struct {
		name string
		v    int
		dst  *int
	}{
		{"pp", a.pp, &p.PP},
		{"tg", a.tg, &p.TG},
		{"pl", a.pl, &p.PL},
		{"nr", a.nr, &p.NR},
	} {
		switch {
		case f.v < 0:
			return bench.Params{}, fmt.Errorf("--%s must be positive, got %d", f.name, f.v)
		case f.v > 0:
			*f.dst = f.v
		}
	}
	return p, nil
}

type watched interface {
	View() session.View
	Subscribe() (<-chan struct{}, func())
}

// follow copies transcript entries from index from onward to w as they
// grow, stopping once the session is idle. At most limit entries are
// written (0 for all). It returns every entry from index from.
func follow(ctx context.Context, s watched, from, limit int, w io.Writer) ([]string, error) {
	updates, cancel := s.Subscribe()
	defer cancel()

	idx, off := from, 0
	for {
		view := s.View()
		entries := view.Transcript
		for idx < len(entries) && (limit == 0 || idx-from < limit) {
			entry := entries[idx]
			if off < len(entry) {
				_, _ = io.WriteString(w, entry[off:])
				off = len(entry)
			}
			if idx == len(entries)-1 {
				break
			}
			_, _ = io.WriteString(w, "\n")
			idx++
			off = 0
		}

		if !view.State.Busy() {
			if idx < len(entries) && (limit == 0 || idx-from < limit) {
				_, _ = io.WriteString(w, "\n")
			}
			if from >= len(entries) {
				return nil, nil
			}
			return entries[from:], nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-updates:
		}
	}
}

func exitError(err error) error {
	if err == nil {
		return nil
	}
	return cli.Exit(fmt.Sprintf("error: %v", err), 1)
}
