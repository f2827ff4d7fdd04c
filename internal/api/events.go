package api

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v5"
	"golang.org/x/sync/errgroup"
)

const (
	keepAlivePeriod = 15 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = pongWait * 9 / 10
	writeWait       = 10 * time.Second
)

func (s *Server) sessionEvent() Event {
	v := s.session.View()
	return Event{Type: eventSession, Session: &v}
}

// handleEvents streams the session as SSE: one event on connect and one
// after every change until the client goes away or the session closes.
func (s *Server) handleEvents(c *echo.Context) error {
	updates, cancel := s.session.Subscribe()
	defer cancel()

	w, err := NewSSEStreamWriter(c)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if err := w.Send(s.sessionEvent()); err != nil {
		return nil
	}

	ctx := c.Request().Context()
	ticker := time.NewTicker(keepAlivePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.session.Done():
			_ = w.Send(s.sessionEvent())
			return nil
		case <-updates:
			if err := w.Send(s.sessionEvent()); err != nil {
				s.log.Debug("sse client gone", "error", err)
				return nil
			}
		case <-ticker.C:
			if err := w.Comment("keep-alive"); err != nil {
				return nil
			}
		}
	}
}

// handleWebSocket serves a bidirectional feed: the client sends Commands,
// the server pushes session events and command errors.
func (s *Server) handleWebSocket(c *echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return nil
	}
	defer conn.Close()

	log := s.log.With("remote", c.Request().RemoteAddr)
	log.Debug("websocket connected")

	base, cancel := context.WithCancel(c.Request().Context())
	defer cancel()
	g, ctx := errgroup.WithContext(base)
	errs := make(chan ResponseError)

	g.Go(func() error {
		defer conn.Close()
		defer cancel()
		return s.writePump(ctx, conn, errs)
	})
	g.Go(func() error {
		defer cancel()
		return s.readPump(ctx, conn, errs)
	})

	if err := g.Wait(); err != nil {
		log.Debug("websocket closed", "error", err)
	}
	return nil
}

func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, errs chan<- ResponseError) error {
	conn.SetReadLimit(maxRequestBody)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		var cmd Command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			err = newInvalidRequest("invalid command: " + err.Error())
			if !report(ctx, errs, err) {
				return nil
			}
			continue
		}
		if err := s.apply(cmd); err != nil {
			if !report(ctx, errs, err) {
				return nil
			}
		}
	}
}

func report(ctx context.Context, errs chan<- ResponseError, err error) bool {
	_, errType := classify(err)
	select {
	case errs <- ResponseError{Message: err.Error(), Type: errType}:
		return true
	case <-ctx.Done():
		return false
	}
}

// writePump owns every write to conn.
func (s *Server) writePump(ctx context.Context, conn *websocket.Conn, errs <-chan ResponseError) error {
	updates, unsubscribe := s.session.Subscribe()
	defer unsubscribe()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	if err := writeEvent(conn, s.sessionEvent()); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.session.Done():
			if err := writeEvent(conn, s.sessionEvent()); err != nil {
				return err
			}
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return nil
		case e := <-errs:
			if err := writeEvent(conn, Event{Type: eventError, Error: &e}); err != nil {
				return err
			}
		case <-updates:
			if err := writeEvent(conn, s.sessionEvent()); err != nil {
				return err
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				if errors.Is(err, websocket.ErrCloseSent) {
					return nil
				}
				return err
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, b)
}
