package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/mutuelle-assistant/internal/assistant"
	"github.com/ashureev/mutuelle-assistant/internal/identity"
	"github.com/ashureev/mutuelle-assistant/internal/middleware"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// StreamHandler pushes assistant snapshots over a WebSocket and accepts
// chat commands on the same connection.
type StreamHandler struct {
	reg            *assistant.Registry
	conns          *Connections
	limiter        *middleware.RateLimiter
	originPatterns []string
	logger         *slog.Logger
}

// NewStreamHandler creates the handler. The limiter charges send and
// suggestion commands to the same per-user bucket as the HTTP routes; nil
// disables it. originPatterns follow websocket.AcceptOptions; empty means
// same-origin only.
func NewStreamHandler(reg *assistant.Registry, conns *Connections, limiter *middleware.RateLimiter, originPatterns []string, logger *slog.Logger) *StreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if conns == nil {
		conns = NewConnections()
	}
	if limiter == nil {
		limiter = middleware.NewRateLimiter(0, 0)
	}
	return &StreamHandler{reg: reg, conns: conns, limiter: limiter, originPatterns: originPatterns, logger: logger}
}

// wsMessage is both directions of the stream protocol.
type wsMessage struct {
	Type     string              `json:"type"`
	Content  string              `json:"content,omitempty"`
	Error    string              `json:"error,omitempty"`
	Snapshot *assistant.Snapshot `json:"snapshot,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	mgr, err := h.reg.GetOrCreate(userID)
	if err != nil {
		Error(w, http.StatusServiceUnavailable, "assistant unavailable")
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	connID := uuid.NewString()
	h.conns.Register(userID, connID, ws)
	defer h.conns.Unregister(userID, connID, ws)
	h.logger.Info("Assistant stream opened", "user_id", userID, "conn_id", connID, "ip", identity.IPFromRequest(r))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Latest-wins: a pending signal already means "send the newest snapshot".
	changed := make(chan struct{}, 1)
	unsubscribe := mgr.Subscribe(func(assistant.Snapshot) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer cancel()
		h.outputLoop(ctx, ws, mgr, changed, userID)
	}()

	h.inputLoop(ctx, ws, mgr, userID)
	cancel()
	<-done
	h.logger.Info("Assistant stream ended", "user_id", userID, "conn_id", connID)
}

func (h *StreamHandler) outputLoop(ctx context.Context, ws *websocket.Conn, mgr *assistant.Manager, changed <-chan struct{}, userID string) {
	for {
		snap := mgr.Snapshot()
		if err := writeJSON(ctx, ws, wsMessage{Type: "snapshot", Snapshot: &snap}); err != nil {
			if ctx.Err() == nil {
				h.logger.Debug("WebSocket write error", "error", err, "user_id", userID)
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-changed:
		}
	}
}

func (h *StreamHandler) inputLoop(ctx context.Context, ws *websocket.Conn, mgr *assistant.Manager, userID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				h.logger.Debug("WebSocket closed", "user_id", userID)
			} else {
				h.logger.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.reply(ctx, ws, wsMessage{Type: "error", Error: "invalid message"})
			continue
		}

		h.reg.Touch(userID)
		if (msg.Type == "send" || msg.Type == "suggestion") && !h.limiter.Allow(userID) {
			h.reply(ctx, ws, wsMessage{Type: "error", Error: "rate limit exceeded"})
			continue
		}
		switch msg.Type {
		case "send":
			h.replyErr(ctx, ws, mgr.SendMessage(context.WithoutCancel(ctx), msg.Content))
		case "suggestion":
			h.replyErr(ctx, ws, mgr.UseSuggestion(context.WithoutCancel(ctx), msg.Content))
		case "reset":
			if err := mgr.Reset(context.WithoutCancel(ctx)); err != nil {
				h.reply(ctx, ws, wsMessage{Type: "error", Error: err.Error()})
			}
		case "refresh":
			mgr.RefreshContext(ctx)
		case "ping":
			h.reply(ctx, ws, wsMessage{Type: "pong"})
		default:
			h.reply(ctx, ws, wsMessage{Type: "error", Error: "unknown message type"})
		}
	}
}

// replyErr reports rejected commands. A failed send already shows as an
// apology in the next snapshot.
func (h *StreamHandler) replyErr(ctx context.Context, ws *websocket.Conn, err error) {
	if err == nil || errors.Is(err, assistant.ErrSendFailed) {
		return
	}
	_, msg := statusFor(err)
	h.reply(ctx, ws, wsMessage{Type: "error", Error: msg})
}

func (h *StreamHandler) reply(ctx context.Context, ws *websocket.Conn, msg wsMessage) {
	if err := writeJSON(ctx, ws, msg); err != nil {
		h.logger.Debug("Failed to send websocket reply", "type", msg.Type, "error", err)
	}
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
