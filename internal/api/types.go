package api

import "github.com/samcharles93/llamachat/internal/session"

// SessionResponse is the body of every session endpoint.
type SessionResponse struct {
	Object string `json:"object"`
	session.View
}

type LoadRequest struct {
	// Path defaults to the configured model file.
	Path string `json:"path,omitempty"`
}

type DraftRequest struct {
	Text string `json:"text"`
}

type SendRequest struct {
	// Text replaces the draft before sending when set.
	Text *string `json:"text,omitempty"`
}

// BenchmarkRequest carries the warm-up parameters; unset fields take the
// configured defaults.
type BenchmarkRequest struct {
	PP *int `json:"pp,omitempty"`
	TG *int `json:"tg,omitempty"`
	PL *int `json:"pl,omitempty"`
	NR *int `json:"nr,omitempty"`
}

type ResponseError struct {
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
}

type ErrorResponse struct {
	Error ResponseError `json:"error"`
}

// Command is a websocket client message. Type selects the operation; the
// other fields are read by the operations that need them.
type Command struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Path string `json:"path,omitempty"`
	PP   int    `json:"pp,omitempty"`
	TG   int    `json:"tg,omitempty"`
	PL   int    `json:"pl,omitempty"`
	NR   int    `json:"nr,omitempty"`
}

// Event is pushed to websocket and SSE clients.
type Event struct {
	Type    string         `json:"type"`
	Session *session.View  `json:"session,omitempty"`
	Error   *ResponseError `json:"error,omitempty"`
}

const (
	objectSession = "session"

	eventSession = "session"
	eventError   = "error"
)
