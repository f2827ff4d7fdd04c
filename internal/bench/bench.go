// Package bench runs the two-phase latency benchmark: a caller-sized
// warm-up whose duration decides whether a fixed-size main run follows.
package bench

import (
	"context"
	"fmt"
	"time"
)

// Params are the engine bench arguments: prompt tokens, generated tokens,
// parallel sequences and repetitions.
type Params struct {
	PP int `yaml:"pp" json:"pp"`
	TG int `yaml:"tg" json:"tg"`
	PL int `yaml:"pl" json:"pl"`
	NR int `yaml:"nr" json:"nr"`
}

func (p Params) String() string {
	return fmt.Sprintf("pp=%d tg=%d pl=%d nr=%d", p.PP, p.TG, p.PL, p.NR)
}

// Overlay returns p with the positive fields of o applied. Zero fields of o
// keep p's value.
func (p Params) Overlay(o Params) Params {
	for _, f := range [...]struct{ dst, src *int }{
		{&p.PP, &o.PP},
		{&p.TG, &o.TG},
		{&p.PL, &o.PL},
		{&p.NR, &o.NR},
	} {
		if *f.src > 0 {
			*f.dst = *f.src
		}
	}
	return p
}

// Config holds the protocol constants.
type Config struct {
	// WarmupLimit aborts the benchmark when the warm-up takes longer.
	WarmupLimit time.Duration
	// Main are the parameters of the second phase, independent of the
	// caller's warm-up parameters.
	Main Params
}

func DefaultConfig() Config {
	return Config{
		WarmupLimit: 5 * time.Second,
		Main:        Params{PP: 512, TG: 128, PL: 1, NR: 3},
	}
}

// DefaultWarmup matches the front end's bench button.
func DefaultWarmup() Params {
	return Params{PP: 8, TG: 4, PL: 1, NR: 1}
}

// Bencher is the slice of the engine the runner needs.
type Bencher interface {
	Bench(ctx context.Context, pp, tg, pl, nr int) (string, error)
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the wall clock.
var SystemClock Clock = systemClock{}

type Outcome struct {
	WarmupSeconds float64
	WarmupSummary string
	// MainSummary is nil when the main phase did not run.
	MainSummary *string
	Aborted     bool
}

type Runner struct {
	Engine Bencher
	Clock  Clock
	Config Config
}

// Run executes the protocol. report receives each transcript line as soon
// as it is known. On failure the partial outcome is returned with the error.
func (r Runner) Run(ctx context.Context, p Params, report func(string)) (Outcome, error) {
	var out Outcome
	clock := r.Clock
	if clock == nil {
		clock = SystemClock
	}
	if report == nil {
		report = func(string) {}
	}

	start := clock.Now()
	warmup, err := r.Engine.Bench(ctx, p.PP, p.TG, p.PL, p.NR)
	end := clock.Now()
	if err != nil {
		return out, err
	}
	out.WarmupSummary = warmup
	report(warmup)

	out.WarmupSeconds = end.Sub(start).Seconds()
	report(fmt.Sprintf("Warm up time: %v seconds, please wait...", out.WarmupSeconds))

	if out.WarmupSeconds > r.Config.WarmupLimit.Seconds() {
		out.Aborted = true
		report("Warm up took too long, aborting benchmark")
		return out, nil
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}

	m := r.Config.Main
	summary, err := r.Engine.Bench(ctx, m.PP, m.TG, m.PL, m.NR)
	if err != nil {
		return out, err
	}
	out.MainSummary = &summary
	report(summary)
	return out, nil
}
