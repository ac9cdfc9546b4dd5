package server

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/michaelbrown/aether/internal/relay"
)

const wsWriteWait = 10 * time.Second

// wsOutgoing is a frame sent to the client.
type wsOutgoing struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Result  any    `json:"result,omitempty"`
}

func (s *Server) upgrader() *websocket.Upgrader {
	origins := s.cfg.CORS.AllowedOrigins
	return &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(origins, "*") || slices.Contains(origins, origin)
		},
	}
}

// handleExecuteStream runs one execution per connection. The client sends an
// execute request; output lines are forwarded as they arrive, followed by a
// single result frame.
func (s *Server) handleExecuteStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxRequestBody)

	ws := &wsWriter{conn: conn, logger: s.logger}

	var req executeRequest
	if err := conn.ReadJSON(&req); err != nil {
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			ws.write(wsOutgoing{Type: "error", Content: "invalid JSON: " + err.Error()})
		}
		return
	}

	code, timeout, err := req.validate()
	if err != nil {
		ws.write(wsOutgoing{Type: "error", Content: err.Error()})
		return
	}

	// Cancelled when the client goes away.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	out, err := s.execute(ctx, r, "websocket", relay.Request{
		Code:     code,
		Timeout:  timeout,
		OnStdout: func(line string) { ws.write(wsOutgoing{Type: "stdout", Content: line}) },
		OnStderr: func(line string) { ws.write(wsOutgoing{Type: "stderr", Content: line}) },
	})

	ws.write(wsOutgoing{Type: "result", Result: envelope(out, err)})
	ws.close()
}

// wsWriter serializes writes to a connection.
type wsWriter struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	logger zerolog.Logger
}

func (ws *wsWriter) write(v wsOutgoing) {
	data, err := json.Marshal(v)
	if err != nil {
		ws.logger.Error().Err(err).Msg("websocket marshal error")
		return
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := ws.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		ws.logger.Debug().Err(err).Msg("websocket write error")
	}
}

func (ws *wsWriter) close() {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	ws.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}
