package session

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/samcharles93/llamachat/internal/engine/enginetest"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newController(t *testing.T, f *enginetest.Fake, opts Options) *Controller {
	t.Helper()
	c := New(f, opts)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func loadedController(t *testing.T, f *enginetest.Fake, opts Options) *Controller {
	t.Helper()
	c := newController(t, f, opts)
	if err := c.Load("/m.gguf"); err != nil {
		t.Fatalf("load: %v", err)
	}
	c.Wait()
	if got := c.State(); got != Loaded {
		t.Fatalf("state after load: got %s want %s", got, Loaded)
	}
	return c
}

func assertEntries(t *testing.T, c *Controller, want ...string) {
	t.Helper()
	got := c.Snapshot()
	if !slices.Equal(got, want) {
		t.Fatalf("transcript: got %q want %q", got, want)
	}
}

func TestLoadAppendsPathAndEntersLoaded(t *testing.T) {
	t.Parallel()

	f := enginetest.NewFake()
	c := newController(t, f, Options{})
	if err := c.Load("/models/m.gguf"); err != nil {
		t.Fatalf("load: %v", err)
	}
	c.Wait()

	if got := c.State(); got != Loaded {
		t.Fatalf("state: got %s want %s", got, Loaded)
	}
	assertEntries(t, c, "Loaded /models/m.gguf")
	if got := f.Loads(); !slices.Equal(got, []string{"/models/m.gguf"}) {
		t.Fatalf("engine loads: got %q", got)
	}
}

func TestLoadFailureRevertsToUnloaded(t *testing.T) {
	t.Parallel()

	f := enginetest.NewFake()
	f.LoadErr = errors.New("bad magic")
	c := newController(t, f, Options{})
	if err := c.Load("/m.gguf"); err != nil {
		t.Fatalf("load: %v", err)
	}
	c.Wait()

	if got := c.State(); got != Unloaded {
		t.Fatalf("state: got %s want %s", got, Unloaded)
	}
	assertEntries(t, c, "bad magic")
}

func TestReloadFromLoaded(t *testing.T) {
	t.Parallel()

	f := enginetest.NewFake()
	c := loadedController(t, f, Options{})
	if err := c.Load("/other.gguf"); err != nil {
		t.Fatalf("reload: %v", err)
	}
	c.Wait()

	assertEntries(t, c, "Loaded /m.gguf", "Loaded /other.gguf")
	if got := c.State(); got != Loaded {
		t.Fatalf("state: got %s want %s", got, Loaded)
	}
}

func TestSendStreamsIntoPlaceholder(t *testing.T) {
	t.Parallel()

	f := enginetest.NewFake("H", "i", "!")
	c := loadedController(t, f, Options{})
	c.UpdateDraft("hi")
	if err := c.Send(); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := c.Draft(); got != "" {
		t.Fatalf("draft after send: got %q want empty", got)
	}
	c.Wait()

	assertEntries(t, c, "Loaded /m.gguf", "hi", "Hi!")
	if got := c.State(); got != Loaded {
		t.Fatalf("state: got %s want %s", got, Loaded)
	}
	if got := f.Sends(); !slices.Equal(got, []string{"hi"}) {
		t.Fatalf("engine sends: got %q", got)
	}
}

func TestSendAddsTwoEntriesBeforeStreaming(t *testing.T) {
	t.Parallel()

	f := enginetest.NewFake("a", "b")
	c := loadedController(t, f, Options{})

	for i, prompt := range []string{"one", "two", "three"} {
		hold := make(chan struct{})
		f.Hold = hold
		before := len(c.Snapshot())

		c.UpdateDraft(prompt)
		if err := c.Send(); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		snap := c.Snapshot()
		if len(snap) != before+2 {
			t.Fatalf("send %d: got %d entries want %d", i, len(snap), before+2)
		}
		if snap[before] != prompt || snap[before+1] != "" {
			t.Fatalf("send %d: tail got %q", i, snap[before:])
		}

		close(hold)
		c.Wait()
		if got := c.Snapshot()[before+1]; got != "ab" {
			t.Fatalf("send %d: placeholder got %q want %q", i, got, "ab")
		}
	}
}

func TestSendErrorAppendsNewEntry(t *testing.T) {
	t.Parallel()

	f := enginetest.NewFake("a", "b")
	f.SendErr = errors.New("context window exceeded")
	c := loadedController(t, f, Options{})
	c.UpdateDraft("hi")
	if err := c.Send(); err != nil {
		t.Fatalf("send: %v", err)
	}
	c.Wait()

	assertEntries(t, c, "Loaded /m.gguf", "hi", "ab", "context window exceeded")
	if got := c.State(); got != Loaded {
		t.Fatalf("state: got %s want %s", got, Loaded)
	}
}

func TestSendWithoutModelIsRejected(t *testing.T) {
	t.Parallel()

	f := enginetest.NewFake("x")
	c := newController(t, f, Options{})
	c.UpdateDraft("hello")

	err := c.Send()
	if !errors.Is(err, ErrState) {
		t.Fatalf("send: got %v want ErrState", err)
	}
	var se *StateError
	if !errors.As(err, &se) || se.Op != "send" || se.State != Unloaded {
		t.Fatalf("state error: got %#v", err)
	}
	if got := c.Draft(); got != "hello" {
		t.Fatalf("draft: got %q want %q", got, "hello")
	}
	assertEntries(t, c)
	if len(f.Sends()) != 0 {
		t.Fatalf("engine was called")
	}
}

func TestLoadWhileGeneratingIsRejected(t *testing.T) {
	t.Parallel()

	f := enginetest.NewFake("H", "i")
	c := loadedController(t, f, Options{})
	hold := make(chan struct{})
	started := make(chan struct{}, 1)
	f.Hold = hold
	f.Started = started

	c.UpdateDraft("hi")
	if err := c.Send(); err != nil {
		t.Fatalf("send: %v", err)
	}
	<-started
	before := c.Snapshot()

	err := c.Load("/other.gguf")
	if !errors.Is(err, ErrState) {
		t.Fatalf("load while generating: got %v want ErrState", err)
	}
	if got := c.State(); got != Generating {
		t.Fatalf("state: got %s want %s", got, Generating)
	}
	if got := c.Snapshot(); !slices.Equal(got, before) {
		t.Fatalf("transcript changed: got %q want %q", got, before)
	}
	if got := f.Loads(); len(got) != 1 {
		t.Fatalf("engine loads: got %q", got)
	}

	for _, op := range []func() error{
		c.Send,
		func() error { return c.Benchmark(8, 4, 1, 1) },
	} {
		if err := op(); !errors.Is(err, ErrState) {
			t.Fatalf("overlapping op: got %v want ErrState", err)
		}
	}

	close(hold)
	c.Wait()
	assertEntries(t, c, "Loaded /m.gguf", "hi", "Hi")
}

func TestBenchmarkProtocol(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		warmup     time.Duration
		wantCalls  []enginetest.BenchCall
		wantSuffix []string
	}{
		{
			name:      "aborts slow warm up",
			warmup:    6 * time.Second,
			wantCalls: []enginetest.BenchCall{{PP: 16, TG: 2, PL: 1, NR: 1}},
			wantSuffix: []string{
				"summary pp=16",
				"Warm up time: 6 seconds, please wait...",
				"Warm up took too long, aborting benchmark",
			},
		},
		{
			name:   "runs fixed main phase",
			warmup: 1500 * time.Millisecond,
			wantCalls: []enginetest.BenchCall{
				{PP: 16, TG: 2, PL: 1, NR: 1},
				{PP: 512, TG: 128, PL: 1, NR: 3},
			},
			wantSuffix: []string{
				"summary pp=16",
				"Warm up time: 1.5 seconds, please wait...",
				"summary pp=512",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			clk := &fakeClock{now: time.Unix(1700000000, 0)}
			f := enginetest.NewFake()
			calls := 0
			f.BenchFunc = func(pp, tg, pl, nr int) (string, error) {
				calls++
				if calls == 1 {
					clk.advance(tt.warmup)
				}
				return fmt.Sprintf("summary pp=%d", pp), nil
			}
			c := loadedController(t, f, Options{Clock: clk})

			if err := c.Benchmark(16, 2, 1, 1); err != nil {
				t.Fatalf("benchmark: %v", err)
			}
			c.Wait()

			want := append([]string{"Loaded /m.gguf"}, tt.wantSuffix...)
			assertEntries(t, c, want...)
			if got := f.Benches(); !slices.Equal(got, tt.wantCalls) {
				t.Fatalf("bench calls: got %+v want %+v", got, tt.wantCalls)
			}
			if got := c.State(); got != Loaded {
				t.Fatalf("state: got %s want %s", got, Loaded)
			}
		})
	}
}

func TestBenchmarkFailureReturnsToLoaded(t *testing.T) {
	t.Parallel()

	f := enginetest.NewFake()
	f.BenchFunc = func(pp, tg, pl, nr int) (string, error) {
		return "", errors.New("kv cache too small")
	}
	c := loadedController(t, f, Options{})
	if err := c.Benchmark(8, 4, 1, 1); err != nil {
		t.Fatalf("benchmark: %v", err)
	}
	c.Wait()

	assertEntries(t, c, "Loaded /m.gguf", "kv cache too small")
	if got := c.State(); got != Loaded {
		t.Fatalf("state: got %s want %s", got, Loaded)
	}
}

func TestBenchmarkRequiresLoaded(t *testing.T) {
	t.Parallel()

	f := enginetest.NewFake()
	c := newController(t, f, Options{})
	if err := c.Benchmark(8, 4, 1, 1); !errors.Is(err, ErrState) {
		t.Fatalf("benchmark: got %v want ErrState", err)
	}
	if len(f.Benches()) != 0 {
		t.Fatalf("engine was called")
	}
}

func TestClearEmptiesTranscriptInAnyState(t *testing.T) {
	t.Parallel()

	f := enginetest.NewFake("H", "i", "!")
	c := newController(t, f, Options{Transcript: []string{"Initializing..."}})
	c.Clear()
	assertEntries(t, c)

	if err := c.Load("/m.gguf"); err != nil {
		t.Fatalf("load: %v", err)
	}
	c.Wait()
	hold := make(chan struct{})
	started := make(chan struct{}, 1)
	f.Hold = hold
	f.Started = started
	c.UpdateDraft("hi")
	if err := c.Send(); err != nil {
		t.Fatalf("send: %v", err)
	}
	<-started

	c.Clear()
	assertEntries(t, c)
	if got := c.State(); got != Generating {
		t.Fatalf("state: got %s want %s", got, Generating)
	}

	close(hold)
	c.Wait()
	assertEntries(t, c, "Hi!")
}

func TestUpdateDraftThenSendConsumesDraft(t *testing.T) {
	t.Parallel()

	f := enginetest.NewFake()
	c := loadedController(t, f, Options{})
	c.UpdateDraft("hel")
	c.UpdateDraft("hello")
	if err := c.Send(); err != nil {
		t.Fatalf("send: %v", err)
	}
	c.Wait()

	if got := c.Draft(); got != "" {
		t.Fatalf("draft: got %q want empty", got)
	}
	if got := c.Snapshot()[1]; got != "hello" {
		t.Fatalf("first new entry: got %q want %q", got, "hello")
	}
}

func TestUnloadCancelsStreamWithoutErrorEntry(t *testing.T) {
	t.Parallel()

	f := enginetest.NewFake("H", "i")
	c := loadedController(t, f, Options{})
	started := make(chan struct{}, 1)
	f.Hold = make(chan struct{})
	f.Started = started

	c.UpdateDraft("hi")
	if err := c.Send(); err != nil {
		t.Fatalf("send: %v", err)
	}
	<-started

	if err := c.Unload(); err != nil {
		t.Fatalf("unload: %v", err)
	}
	if got := c.State(); got != Unloaded {
		t.Fatalf("state: got %s want %s", got, Unloaded)
	}
	assertEntries(t, c, "Loaded /m.gguf", "hi", "")
	if got := f.UnloadCalls(); got != 1 {
		t.Fatalf("engine unloads: got %d want 1", got)
	}

	// The controller is reusable after an unload.
	f.Hold = nil
	if err := c.Load("/m.gguf"); err != nil {
		t.Fatalf("load after unload: %v", err)
	}
	c.Wait()
	if got := c.State(); got != Loaded {
		t.Fatalf("state: got %s want %s", got, Loaded)
	}
}

func TestUnloadFailureIsAppended(t *testing.T) {
	t.Parallel()

	f := enginetest.NewFake()
	f.UnloadErr = errors.New("device busy")
	c := loadedController(t, f, Options{})

	if err := c.Unload(); err != nil {
		t.Fatalf("unload: %v", err)
	}
	if got := c.State(); got != Unloaded {
		t.Fatalf("state: got %s want %s", got, Unloaded)
	}
	assertEntries(t, c, "Loaded /m.gguf", "device busy")
}

func TestUnloadWithoutModelSkipsEngine(t *testing.T) {
	t.Parallel()

	f := enginetest.NewFake()
	c := newController(t, f, Options{})
	if err := c.Unload(); err != nil {
		t.Fatalf("unload: %v", err)
	}
	if got := f.UnloadCalls(); got != 0 {
		t.Fatalf("engine unloads: got %d want 0", got)
	}
	assertEntries(t, c)
}

func TestCloseRejectsLaterOperations(t *testing.T) {
	t.Parallel()

	f := enginetest.NewFake()
	c := loadedController(t, f, Options{})
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if got := f.UnloadCalls(); got != 1 {
		t.Fatalf("engine unloads: got %d want 1", got)
	}

	select {
	case <-c.Done():
	default:
		t.Fatalf("Done not closed after Close")
	}

	ops := map[string]func() error{
		"load":      func() error { return c.Load("/m.gguf") },
		"send":      c.Send,
		"benchmark": func() error { return c.Benchmark(8, 4, 1, 1) },
		"unload":    c.Unload,
	}
	for name, op := range ops {
		err := op()
		if !errors.Is(err, ErrClosed) || !errors.Is(err, ErrState) {
			t.Fatalf("%s after close: got %v want ErrClosed", name, err)
		}
	}
}

func TestSubscribeSignalsChanges(t *testing.T) {
	t.Parallel()

	c := newController(t, enginetest.NewFake(), Options{})
	ch, cancel := c.Subscribe()
	defer cancel()

	c.UpdateDraft("x")
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatalf("no notification after UpdateDraft")
	}

	// Signals coalesce instead of blocking the writer.
	c.Log("one")
	c.Log("two")
	c.Log("three")
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatalf("no notification after Log")
	}

	cancel()
	c.Log("four")
	select {
	case <-ch:
		t.Fatalf("notification after cancel")
	default:
	}
}

func TestViewAndTranscript(t *testing.T) {
	t.Parallel()

	c := newController(t, enginetest.NewFake(), Options{Transcript: []string{"Initializing..."}})
	c.Log("Storage root: /data")
	c.UpdateDraft("draft")

	v := c.View()
	if v.ID != c.ID() || v.ID == "" {
		t.Fatalf("view id: got %q want %q", v.ID, c.ID())
	}
	if v.State != Unloaded || v.Draft != "draft" {
		t.Fatalf("view: got %+v", v)
	}
	if got, want := c.Transcript(), "Initializing...\nStorage root: /data"; got != want {
		t.Fatalf("transcript: got %q want %q", got, want)
	}
}

func TestSendWithEmptyDraftSendsEmptyMessage(t *testing.T) {
	t.Parallel()
	f := enginetest.NewFake("ok")
	c := loadedController(t, f, Options{})

	if err := c.Send(); err != nil {
		t.Fatalf("send: %v", err)
	}
	c.Wait()

	assertEntries(t, c, "Loaded /m.gguf", "", "ok")
	if got := f.Sends(); !slices.Equal(got, []string{""}) {
		t.Fatalf("engine sends: got %q want [\"\"]", got)
	}
}
