// Package enginetest provides a scriptable in-memory engine for tests.
package enginetest

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/samcharles93/llamachat/internal/engine"
)

type BenchCall struct {
	PP, TG, PL, NR int
}

// Fake is an engine.Engine whose responses are set through its fields.
// Configure it before handing it to a controller.
type Fake struct {
	LoadErr   error
	UnloadErr error

	// Tokens are streamed by Send, then SendErr ends the stream if set.
	Tokens  []string
	SendErr error

	// BenchFunc answers Bench; the default echoes the parameters.
	BenchFunc func(pp, tg, pl, nr int) (string, error)

	// When Hold is non-nil, Load and every token wait for a value on it
	// (or for cancellation).
	Hold chan struct{}
	// Started receives a value when Send or Load begins, if non-nil.
	Started chan struct{}

	mu          sync.Mutex
	loads       []string
	sends       []string
	benches     []BenchCall
	unloadCalls int
}

func NewFake(tokens ...string) *Fake {
	return &Fake{Tokens: tokens}
}

func (f *Fake) Load(ctx context.Context, path string) error {
	f.mu.Lock()
	f.loads = append(f.loads, path)
	f.mu.Unlock()
	f.signalStarted()
	if err := f.wait(ctx); err != nil {
		return engine.Wrap("load", err)
	}
	return engine.Wrap("load", f.LoadErr)
}

func (f *Fake) Send(ctx context.Context, text string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		f.mu.Lock()
		f.sends = append(f.sends, text)
		f.mu.Unlock()
		f.signalStarted()

		for _, tok := range f.Tokens {
			if err := f.wait(ctx); err != nil {
				yield("", engine.Wrap("send", err))
				return
			}
			if !yield(tok, nil) {
				return
			}
		}
		if f.SendErr != nil {
			yield("", engine.Wrap("send", f.SendErr))
		}
	}
}

func (f *Fake) Bench(_ context.Context, pp, tg, pl, nr int) (string, error) {
	f.mu.Lock()
	f.benches = append(f.benches, BenchCall{PP: pp, TG: tg, PL: pl, NR: nr})
	f.mu.Unlock()
	if f.BenchFunc != nil {
		out, err := f.BenchFunc(pp, tg, pl, nr)
		return out, engine.Wrap("bench", err)
	}
	return fmt.Sprintf("bench pp=%d tg=%d pl=%d nr=%d", pp, tg, pl, nr), nil
}

func (f *Fake) Unload(context.Context) error {
	f.mu.Lock()
	f.unloadCalls++
	f.mu.Unlock()
	return engine.Wrap("unload", f.UnloadErr)
}

func (f *Fake) Loads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.loads...)
}

func (f *Fake) Sends() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sends...)
}

func (f *Fake) Benches() []BenchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]BenchCall(nil), f.benches...)
}

func (f *Fake) UnloadCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unloadCalls
}

func (f *Fake) wait(ctx context.Context) error {
	if f.Hold == nil {
		return ctx.Err()
	}
	select {
	case <-f.Hold:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Fake) signalStarted() {
	if f.Started == nil {
		return
	}
	select {
	case f.Started <- struct{}{}:
	default:
	}
}
