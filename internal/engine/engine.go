package engine

import (
	"context"
	"iter"
)

// Engine is the text-generation capability driven by a chat session.
// Implementations are expected to serialize their own internal state.
type Engine interface {
	Load(ctx context.Context, path string) error
	// Send streams token fragments for text. The sequence is finite and
	// cannot be restarted; a non-nil error ends it.
	Send(ctx context.Context, text string) iter.Seq2[string, error]
	Bench(ctx context.Context, pp, tg, pl, nr int) (string, error)
	Unload(ctx context.Context) error
}
