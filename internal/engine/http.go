package engine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/llamachat/internal/logger"
)

const (
	modelsPath          = "/v1/models"
	chatCompletionsPath = "/v1/chat/completions"

	maxSSELine = 1 << 20
)

// HTTPConfig configures an HTTPEngine.
type HTTPConfig struct {
	// BaseURL of an OpenAI-compatible server, e.g. http://127.0.0.1:8080.
	BaseURL string
	// Timeout bounds the non-streaming probe made by Load. Streams are
	// bounded by their context only.
	Timeout   time.Duration
	UserAgent string
	Client    *http.Client
}

// HTTPEngine drives a local inference server speaking the chat completions
// API. The loaded model path is sent as the request model id.
type HTTPEngine struct {
	baseURL   string
	timeout   time.Duration
	userAgent string
	http      *http.Client

	mu        sync.Mutex
	model     string
	modelSize int64
}

func NewHTTP(cfg HTTPConfig) *HTTPEngine {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPEngine{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		timeout:   timeout,
		userAgent: cfg.UserAgent,
		http:      client,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	Stream    bool          `json:"stream"`
	MaxTokens *int          `json:"max_tokens,omitempty"`
	Seed      *int64        `json:"seed,omitempty"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error json.RawMessage `json:"error,omitempty"`
}

func (e *HTTPEngine) Load(ctx context.Context, path string) error {
	log := logger.FromContext(ctx)

	path = filepath.Clean(path)
	st, err := os.Stat(path)
	if err != nil {
		return Wrap("load", err)
	}
	if !st.Mode().IsRegular() {
		return Wrap("load", fmt.Errorf("%w: %s", ErrNotFile, path))
	}

	probeCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	req, err := e.newRequest(probeCtx, http.MethodGet, modelsPath, nil)
	if err != nil {
		return Wrap("load", err)
	}
	resp, err := e.http.Do(req)
	if err != nil {
		return Wrap("load", fmt.Errorf("engine server unreachable: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()
	if err := checkStatus(resp); err != nil {
		return Wrap("load", err)
	}

	e.mu.Lock()
	e.model = path
	e.modelSize = st.Size()
	e.mu.Unlock()

	log.Debug("engine model loaded", "path", path, "bytes", st.Size())
	return nil
}

func (e *HTTPEngine) Send(ctx context.Context, text string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		model, _, err := e.current()
		if err != nil {
			yield("", Wrap("send", err))
			return
		}

		resp, err := e.postChat(ctx, chatRequest{
			Model:    model,
			Messages: []chatMessage{{Role: "user", Content: text}},
			Stream:   true,
		})
		if err != nil {
			yield("", Wrap("send", err))
			return
		}
		defer func() { _ = resp.Body.Close() }()

		for delta, err := range readChunks(resp.Body) {
			if err != nil {
				yield("", Wrap("send", err))
				return
			}
			if delta == "" {
				continue
			}
			if !yield(delta, nil) {
				return
			}
		}
	}
}

// Bench runs nr repetitions of pl concurrent sequences, each processing a
// pp-word prompt and generating up to tg tokens, and returns a markdown
// summary table.
func (e *HTTPEngine) Bench(ctx context.Context, pp, tg, pl, nr int) (string, error) {
	log := logger.FromContext(ctx)

	if pp <= 0 || tg <= 0 || pl <= 0 || nr <= 0 {
		return "", Wrap("bench", fmt.Errorf("invalid bench parameters pp=%d tg=%d pl=%d nr=%d", pp, tg, pl, nr))
	}
	model, size, err := e.current()
	if err != nil {
		return "", Wrap("bench", err)
	}

	prompt := strings.TrimSpace(strings.Repeat("hello ", pp))
	ppRates := make([]float64, 0, nr)
	tgRates := make([]float64, 0, nr)

	for run := range nr {
		timings := make([]seqTiming, pl)
		g, gctx := errgroup.WithContext(ctx)
		for i := range pl {
			g.Go(func() error {
				t, err := e.timeSequence(gctx, model, prompt, tg)
				timings[i] = t
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return "", Wrap("bench", err)
		}

		var ppTime, total time.Duration
		generated := 0
		for _, t := range timings {
			ppTime = max(ppTime, t.firstToken)
			total = max(total, t.total)
			generated += t.tokens
		}
		tgTime := total - ppTime
		ppRates = append(ppRates, rate(pp*pl, ppTime))
		tgRates = append(tgRates, rate(generated, tgTime))
		log.Debug("bench run", "run", run+1, "pp_time", ppTime, "tg_time", tgTime, "tokens", generated)
	}

	return formatBenchTable(filepath.Base(model), size, pp, tg, ppRates, tgRates), nil
}

func (e *HTTPEngine) Unload(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == "" {
		return Wrap("unload", ErrNotLoaded)
	}
	logger.FromContext(ctx).Debug("engine model unloaded", "path", e.model)
	e.model = ""
	e.modelSize = 0
	return nil
}

func (e *HTTPEngine) current() (string, int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == "" {
		return "", 0, ErrNotLoaded
	}
	return e.model, e.modelSize, nil
}

type seqTiming struct {
	firstToken time.Duration
	total      time.Duration
	tokens     int
}

func (e *HTTPEngine) timeSequence(ctx context.Context, model, prompt string, tg int) (seqTiming, error) {
	var t seqTiming
	seed := int64(42)
	start := time.Now()
	resp, err := e.postChat(ctx, chatRequest{
		Model:     model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		Stream:    true,
		MaxTokens: &tg,
		Seed:      &seed,
	})
	if err != nil {
		return t, err
	}
	defer func() { _ = resp.Body.Close() }()

	for delta, err := range readChunks(resp.Body) {
		if err != nil {
			return t, err
		}
		if delta == "" {
			continue
		}
		if t.tokens == 0 {
			t.firstToken = time.Since(start)
		}
		t.tokens++
	}
	t.total = time.Since(start)
	if t.tokens == 0 {
		t.firstToken = t.total
	}
	return t, nil
}

func (e *HTTPEngine) postChat(ctx context.Context, body chatRequest) (*http.Response, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := e.newRequest(ctx, http.MethodPost, chatCompletionsPath, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		_ = resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

func (e *HTTPEngine) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, e.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if e.userAgent != "" {
		req.Header.Set("User-Agent", e.userAgent)
	}
	return req, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(b, &payload) == nil && len(payload.Error) > 0 {
		return fmt.Errorf("engine server: %s (status %d)", errorMessage(payload.Error), resp.StatusCode)
	}
	msg := strings.TrimSpace(string(b))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return fmt.Errorf("engine server: %s (status %d)", msg, resp.StatusCode)
}

// readChunks yields the content deltas of a chat completions SSE body.
func readChunks(r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), maxSSELine)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			data, ok := strings.CutPrefix(line, "data:")
			if !ok {
				continue
			}
			data = strings.TrimSpace(data)
			if data == "[DONE]" {
				return
			}

			var chunk chatChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				yield("", fmt.Errorf("decode stream chunk: %w", err))
				return
			}
			if len(chunk.Error) > 0 && string(chunk.Error) != "null" {
				yield("", errors.New(errorMessage(chunk.Error)))
				return
			}
			for _, choice := range chunk.Choices {
				if !yield(choice.Delta.Content, nil) {
					return
				}
			}
		}
		if err := sc.Err(); err != nil {
			yield("", err)
			return
		}
		yield("", io.ErrUnexpectedEOF)
	}
}

// errorMessage accepts both {"error":"msg"} and {"error":{"message":"msg"}}.
func errorMessage(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &obj) == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}

func rate(tokens int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(tokens) / d.Seconds()
}

func formatBenchTable(model string, size int64, pp, tg int, ppRates, tgRates []float64) string {
	var sb strings.Builder
	sb.WriteString("| model | size | params | backend | test | t/s |\n")
	sb.WriteString("| --- | --- | --- | --- | --- | --- |\n")
	sizeText := formatSize(size)
	for _, row := range []struct {
		test  string
		rates []float64
	}{
		{fmt.Sprintf("pp %d", pp), ppRates},
		{fmt.Sprintf("tg %d", tg), tgRates},
	} {
		mean, std := meanStd(row.rates)
		fmt.Fprintf(&sb, "| %s | %s | - | http | %s | %.2f ± %.2f |\n", model, sizeText, row.test, mean, std)
	}
	return sb.String()
}

func meanStd(vals []float64) (float64, float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(len(vals))
	if len(vals) < 2 {
		return mean, 0
	}
	var sq float64
	for _, v := range vals {
		sq += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sq / float64(len(vals)-1))
}

func formatSize(n int64) string {
	const unit = 1024
	switch {
	case n >= unit*unit*unit:
		return fmt.Sprintf("%.2f GiB", float64(n)/(unit*unit*unit))
	case n >= unit*unit:
		return fmt.Sprintf("%.2f MiB", float64(n)/(unit*unit))
	case n >= unit:
		return fmt.Sprintf("%.2f KiB", float64(n)/unit)
	default:
		return fmt.Sprintf("%d B", n)
	}
}
