// Package api exposes a session controller over HTTP: JSON endpoints for
// the operations plus SSE and websocket feeds of the live session.
package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/llamachat/internal/bench"
	"github.com/samcharles93/llamachat/internal/logger"
	"github.com/samcharles93/llamachat/internal/session"
)

// Session is the controller surface the server drives.
type Session interface {
	View() session.View
	Load(path string) error
	UpdateDraft(text string)
	Send() error
	Benchmark(pp, tg, pl, nr int) error
	Unload() error
	Clear()
	Subscribe() (<-chan struct{}, func())
	Done() <-chan struct{}
}

type Config struct {
	// ModelPath is loaded when a load request names no path.
	ModelPath string
	// Bench are the warm-up parameters used for unset request fields.
	Bench  bench.Params
	Logger logger.Logger
}

type Server struct {
	session   Session
	modelPath string
	bench     bench.Params
	log       logger.Logger
	upgrader  websocket.Upgrader
}

func NewServer(sess Session, cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = logger.Discard()
	}
	params := cfg.Bench
	if params == (bench.Params{}) {
		params = bench.DefaultWarmup()
	}
	return &Server{
		session:   sess,
		modelPath: cfg.ModelPath,
		bench:     params,
		log:       log.With("component", "api"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The listener is local; any page on the host may attach.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/session", s.handleGetSession)
	e.POST("/v1/session/load", s.handleLoad)
	e.PUT("/v1/session/draft", s.handleDraft)
	e.POST("/v1/session/send", s.handleSend)
	e.POST("/v1/session/benchmark", s.handleBenchmark)
	e.POST("/v1/session/unload", s.handleUnload)
	e.DELETE("/v1/session/transcript", s.handleClear)

	e.GET("/v1/session/events", s.handleEvents)
	e.GET("/v1/session/ws", s.handleWebSocket)
}

func (s *Server) handleGetSession(c *echo.Context) error {
	return s.writeSession(c, http.StatusOK)
}

func (s *Server) handleLoad(c *echo.Context) error {
	req, err := decodeJSON[LoadRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	path := strings.TrimSpace(req.Path)
	if path == "" {
		path = s.modelPath
	}
	if path == "" {
		return writeBadRequest(c, "path is required")
	}
	if err := s.session.Load(path); err != nil {
		return writeOpError(c, err)
	}
	return s.writeSession(c, http.StatusAccepted)
}

func (s *Server) handleDraft(c *echo.Context) error {
	req, err := decodeJSON[DraftRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	s.session.UpdateDraft(req.Text)
	return s.writeSession(c, http.StatusOK)
}

func (s *Server) handleSend(c *echo.Context) error {
	req, err := decodeJSON[SendRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if req.Text != nil {
		s.session.UpdateDraft(*req.Text)
	}
	if err := s.session.Send(); err != nil {
		return writeOpError(c, err)
	}
	return s.writeSession(c, http.StatusAccepted)
}

func (s *Server) handleBenchmark(c *echo.Context) error {
	req, err := decodeJSON[BenchmarkRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	p, err := resolveParams(req, s.bench)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if err := s.session.Benchmark(p.PP, p.TG, p.PL, p.NR); err != nil {
		return writeOpError(c, err)
	}
	return s.writeSession(c, http.StatusAccepted)
}

func (s *Server) handleUnload(c *echo.Context) error {
	if err := s.session.Unload(); err != nil {
		return writeOpError(c, err)
	}
	return s.writeSession(c, http.StatusOK)
}

func (s *Server) handleClear(c *echo.Context) error {
	s.session.Clear()
	return s.writeSession(c, http.StatusOK)
}

func (s *Server) writeSession(c *echo.Context, status int) error {
	return c.JSON(status, SessionResponse{
		Object: objectSession,
		View:   s.session.View(),
	})
}

// apply runs a websocket command.
func (s *Server) apply(cmd Command) error {
	switch cmd.Type {
	case "load":
		path := strings.TrimSpace(cmd.Path)
		if path == "" {
			path = s.modelPath
		}
		if path == "" {
			return newInvalidRequest("path is required")
		}
		return s.session.Load(path)
	case "draft":
		s.session.UpdateDraft(cmd.Text)
		return nil
	case "send":
		if cmd.Text != "" {
			s.session.UpdateDraft(cmd.Text)
		}
		return s.session.Send()
	case "benchmark":
		p, err := resolveParams(commandParams(cmd), s.bench)
		if err != nil {
			return err
		}
		return s.session.Benchmark(p.PP, p.TG, p.PL, p.NR)
	case "unload":
		return s.session.Unload()
	case "clear":
		s.session.Clear()
		return nil
	default:
		return newInvalidRequest("unsupported command type: " + cmd.Type)
	}
}

// commandParams treats zero fields as unset.
func commandParams(cmd Command) BenchmarkRequest {
	var req BenchmarkRequest
	set := func(v int) *int {
		if v == 0 {
			return nil
		}
		return &v
	}
	req.PP = set(cmd.PP)
	req.TG = set(cmd.TG)
	req.PL = set(cmd.PL)
	req.NR = set(cmd.NR)
	return req
}
