// Package session implements the chat session controller: the state machine
// that owns the model lifecycle, the draft input and the transcript, and
// mediates every call into the engine.
package session

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/samcharles93/llamachat/internal/bench"
	"github.com/samcharles93/llamachat/internal/engine"
	"github.com/samcharles93/llamachat/internal/logger"
	"github.com/samcharles93/llamachat/internal/transcript"
)

// Options configures a Controller. The zero value is usable.
type Options struct {
	Logger logger.Logger
	// Bench overrides the benchmark protocol constants. The zero value
	// selects bench.DefaultConfig.
	Bench bench.Config
	Clock bench.Clock
	// Transcript seeds the log, e.g. with start-up lines.
	Transcript []string
}

// View is a consistent copy of the observable session.
type View struct {
	ID         string   `json:"id"`
	State      State    `json:"state"`
	Draft      string   `json:"draft"`
	Transcript []string `json:"transcript"`
}

// Controller serializes operations against one engine. Long-running
// operations (Load, Send, Benchmark) start a goroutine and return at once;
// a second one is rejected with a *StateError until the first finishes.
type Controller struct {
	id         string
	engine     engine.Engine
	log        logger.Logger
	runner     bench.Runner
	transcript *transcript.Log

	root       context.Context
	rootCancel context.CancelFunc

	// teardownMu serializes Unload and Close.
	teardownMu sync.Mutex

	// mu guards the fields below and every transcript write.
	mu       sync.Mutex
	state    State
	draft    string
	closed   bool
	cancel   context.CancelFunc
	done     chan struct{}
	resident bool
	// tailGen changes whenever the last entry stops being the placeholder
	// of the running stream.
	tailGen uint64

	subMu   sync.Mutex
	subs    map[int]chan struct{}
	nextSub int
}

func New(eng engine.Engine, opts Options) *Controller {
	id := uuid.NewString()
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	log = log.With("component", "session", "session_id", id)

	cfg := opts.Bench
	if cfg == (bench.Config{}) {
		cfg = bench.DefaultConfig()
	}

	root, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	return &Controller{
		id:         id,
		engine:     eng,
		log:        log,
		runner:     bench.Runner{Engine: eng, Clock: opts.Clock, Config: cfg},
		transcript: transcript.New(opts.Transcript...),
		root:       root,
		rootCancel: cancel,
		subs:       make(map[int]chan struct{}),
	}
}

func (c *Controller) ID() string { return c.id }

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// UpdateDraft replaces the draft input. Permitted in any state.
func (c *Controller) UpdateDraft(text string) {
	c.mu.Lock()
	c.draft = text
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// Snapshot returns a copy of the transcript entries.
func (c *Controller) Snapshot() []string {
	return c.transcript.Snapshot()
}

// Transcript returns the entries joined by newlines.
func (c *Controller) Transcript() string {
	return c.transcript.Join("\n")
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return View{
		ID:         c.id,
		State:      c.state,
		Draft:      c.draft,
		Transcript: c.transcript.Snapshot(),
	}
}

// Clear empties the transcript. Permitted in any state; a running stream
// continues into a fresh entry.
func (c *Controller) Clear() {
	c.mu.Lock()
	c.transcript.Clear()
	c.tailGen++
	c.mu.Unlock()
	c.notify()
}

// Log appends an informational entry.
func (c *Controller) Log(line string) {
	c.appendEntry(line)
}

// Done is closed once Close has completed.
func (c *Controller) Done() <-chan struct{} {
	return c.root.Done()
}

// Load loads the model at path. Permitted from Unloaded and Loaded.
func (c *Controller) Load(path string) error {
	ctx, done, err := c.begin("load", Loading, nil, Unloaded, Loaded)
	if err != nil {
		return err
	}
	log := c.log.With("op", "load", "path", path)
	log.Info("loading model")

	go func() {
		err := c.engine.Load(ctx, path)
		if err == nil {
			log.Info("model loaded")
			c.appendEntry("Loaded " + path)
			c.finish(done, Loaded, true)
			return
		}
		if ctx.Err() == nil {
			log.Warn("load failed", "error", err)
			c.appendEntry(err.Error())
		}
		c.finish(done, Unloaded, false)
	}()
	return nil
}

// Send consumes the draft and streams the engine's reply into a placeholder
// entry. Permitted from Loaded only. An empty draft is not rejected: it is
// echoed as an empty entry and sent to the engine as an empty message.
func (c *Controller) Send() error {
	var (
		text string
		gen  uint64
	)
	ctx, done, err := c.begin("send", Generating, func() {
		text = c.draft
		c.draft = ""
		c.transcript.Append(text)
		c.transcript.Append("")
		c.tailGen++
		gen = c.tailGen
	}, Loaded)
	if err != nil {
		return err
	}

	go func() {
		defer c.finish(done, Loaded, false)
		log := c.log.With("op", "send")
		n := 0
		for token, err := range c.engine.Send(ctx, text) {
			if err != nil {
				if ctx.Err() == nil {
					log.Warn("generation failed", "error", err, "tokens", n)
					c.appendEntry(err.Error())
				}
				return
			}
			n++
			c.growPlaceholder(&gen, token)
			if ctx.Err() != nil {
				return
			}
		}
		log.Debug("generation finished", "tokens", n)
	}()
	return nil
}

// Benchmark runs the two-phase benchmark with (pp, tg, pl, nr) as the
// warm-up parameters. Permitted from Loaded only.
func (c *Controller) Benchmark(pp, tg, pl, nr int) error {
	ctx, done, err := c.begin("benchmark", Benchmarking, nil, Loaded)
	if err != nil {
		return err
	}
	p := bench.Params{PP: pp, TG: tg, PL: pl, NR: nr}
	log := c.log.With("op", "benchmark", "params", p.String())

	go func() {
		defer c.finish(done, Loaded, false)
		out, err := c.runner.Run(ctx, p, c.appendEntry)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("benchmark failed", "error", err)
				c.appendEntry(err.Error())
			}
			return
		}
		log.Info("benchmark finished", "warmup_seconds", out.WarmupSeconds, "aborted", out.Aborted)
	}()
	return nil
}

// Unload cancels any running operation, waits for it, and releases the
// model. It always ends in Unloaded; an engine failure is appended to the
// transcript.
func (c *Controller) Unload() error {
	return c.teardown("unload", false)
}

// Close unloads and marks the controller closed. Later operations fail
// with ErrClosed. Close is idempotent.
func (c *Controller) Close() error {
	return c.teardown("close", true)
}

// Wait blocks until no operation is in flight.
func (c *Controller) Wait() {
	for {
		c.mu.Lock()
		done := c.done
		c.mu.Unlock()
		if done == nil {
			return
		}
		<-done
	}
}

// Subscribe returns a channel that receives a signal after state or
// transcript changes. Signals coalesce; receivers re-read View or Snapshot.
func (c *Controller) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, id)
			c.subMu.Unlock()
		})
	}
}

func (c *Controller) notify() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// begin atomically checks that the controller is in one of the from states,
// runs prepare and moves to next. Nothing happens when it returns an error.
func (c *Controller) begin(op string, next State, prepare func(), from ...State) (context.Context, chan struct{}, error) {
	c.mu.Lock()
	if c.closed {
		defer c.mu.Unlock()
		return nil, nil, &StateError{Op: op, State: c.state, Closed: true}
	}
	if !slices.Contains(from, c.state) {
		defer c.mu.Unlock()
		return nil, nil, &StateError{Op: op, State: c.state}
	}
	if prepare != nil {
		prepare()
	}
	ctx, cancel := context.WithCancel(c.root)
	done := make(chan struct{})
	c.state = next
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	c.notify()
	return ctx, done, nil
}

func (c *Controller) finish(done chan struct{}, next State, loaded bool) {
	c.mu.Lock()
	if loaded {
		c.resident = true
	}
	if c.done == done {
		// A teardown in progress owns the state.
		if c.state != Unloading {
			c.state = next
		}
		c.cancel()
		c.cancel = nil
		c.done = nil
	}
	c.mu.Unlock()

	close(done)
	c.notify()
}

func (c *Controller) teardown(op string, closing bool) error {
	c.teardownMu.Lock()
	defer c.teardownMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		if closing {
			return nil
		}
		return &StateError{Op: op, State: c.state, Closed: true}
	}
	if closing {
		c.closed = true
	}
	cancel, done := c.cancel, c.done
	if done == nil && !c.resident {
		c.mu.Unlock()
		if closing {
			c.log.Debug("session closed")
			c.rootCancel()
		}
		return nil
	}
	c.state = Unloading
	c.mu.Unlock()
	c.notify()

	if cancel != nil {
		cancel()
		<-done
	}

	c.mu.Lock()
	resident := c.resident
	c.mu.Unlock()
	if resident {
		if err := c.engine.Unload(c.root); err != nil {
			c.log.Warn("unload failed", "error", err)
			c.appendEntry(err.Error())
		} else {
			c.log.Info("model unloaded")
		}
	}

	c.mu.Lock()
	c.state = Unloaded
	c.resident = false
	c.mu.Unlock()

	if closing {
		c.log.Debug("session closed")
		c.rootCancel()
	}
	c.notify()
	return nil
}

func (c *Controller) appendEntry(line string) {
	c.mu.Lock()
	c.transcript.Append(line)
	c.tailGen++
	c.mu.Unlock()
	c.notify()
}

// growPlaceholder appends token to the stream's placeholder, or starts a new
// entry when something else has been written since.
func (c *Controller) growPlaceholder(gen *uint64, token string) {
	c.mu.Lock()
	if c.tailGen != *gen || c.transcript.AppendToLast(token) != nil {
		c.transcript.Append(token)
		c.tailGen++
		*gen = c.tailGen
	}
	c.mu.Unlock()
	c.notify()
}
