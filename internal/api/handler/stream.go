package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/urbanscope/urbanscope/internal/api/middleware"
	"github.com/urbanscope/urbanscope/internal/api/response"
	"github.com/urbanscope/urbanscope/internal/engine"
)

// Frame stream timing.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Stream message types.
const (
	MessageFrame  = "frame"
	MessageClosed = "closed"
)

// StreamMessage is the JSON envelope of every message on the frame stream.
type StreamMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// StreamHandler upgrades requests to a websocket carrying a session's frames.
type StreamHandler struct {
	manager  *engine.Manager
	metrics  *middleware.Metrics
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

// StreamConfig configures a StreamHandler.
type StreamConfig struct {
	Manager *engine.Manager
	Metrics *middleware.Metrics
	Logger  zerolog.Logger

	// AllowAnyOrigin skips the same-origin check, for local development.
	AllowAnyOrigin bool
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(cfg StreamConfig) *StreamHandler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if cfg.AllowAnyOrigin {
		upgrader.CheckOrigin = func(*http.Request) bool { return true }
	}
	return &StreamHandler{
		manager:  cfg.Manager,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		upgrader: upgrader,
	}
}

// ServeStream handles GET /v1/sessions/{sessionID}/stream. The current
// frame is sent first, then every published frame. A slow client misses
// frames rather than delaying the session. Pongs count as activity so a
// watched session is not closed as idle.
func (h *StreamHandler) ServeStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	s, err := h.manager.Get(sessionID)
	if err != nil {
		response.NotFound(w, r, "session not found")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an HTTP error.
		h.logger.Debug().Err(err).Str("session_id", sessionID).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx := r.Context()
	h.metrics.StreamOpened(ctx)
	defer h.metrics.StreamClosed(ctx)

	frames, unsubscribe := s.Subscribe()
	defer unsubscribe()

	logger := h.logger.With().Str("session_id", sessionID).Logger()
	logger.Debug().Msg("frame stream opened")

	readDone := make(chan struct{})
	go h.readPump(conn, s, readDone, logger)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	if frame := s.Current(); frame != nil {
		if err := writeMessage(conn, StreamMessage{Type: MessageFrame, Payload: frame}); err != nil {
			return
		}
		h.metrics.FrameSent(ctx)
	}

	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				_ = writeMessage(conn, StreamMessage{Type: MessageClosed})
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
					time.Now().Add(writeWait))
				logger.Debug().Msg("frame stream ended with session")
				return
			}
			if err := writeMessage(conn, StreamMessage{Type: MessageFrame, Payload: frame}); err != nil {
				logger.Debug().Err(err).Msg("frame write failed")
				return
			}
			h.metrics.FrameSent(ctx)
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-readDone:
			logger.Debug().Msg("frame stream closed by client")
			return
		}
	}
}

// readPump discards client messages and detects the close. Controls go
// through the REST endpoints.
func (h *StreamHandler) readPump(conn *websocket.Conn, s *engine.Session, done chan<- struct{}, logger zerolog.Logger) {
	defer close(done)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = s.Touch()
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug().Err(err).Msg("frame stream read error")
			}
			return
		}
	}
}

func writeMessage(conn *websocket.Conn, msg StreamMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}
