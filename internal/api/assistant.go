package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/mutuelle-assistant/internal/assistant"
	"github.com/ashureev/mutuelle-assistant/internal/identity"
	"github.com/ashureev/mutuelle-assistant/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// AssistantHandler exposes each signed-in user's assistant over HTTP.
type AssistantHandler struct {
	reg     *assistant.Registry
	limiter *middleware.RateLimiter
	logger  *slog.Logger
}

// NewAssistantHandler creates the handler. A nil limiter disables rate limiting.
func NewAssistantHandler(reg *assistant.Registry, limiter *middleware.RateLimiter, logger *slog.Logger) *AssistantHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if limiter == nil {
		limiter = middleware.NewRateLimiter(0, 0)
	}
	return &AssistantHandler{reg: reg, limiter: limiter, logger: logger}
}

type messageRequest struct {
	Content string `json:"content"`
}

type suggestionRequest struct {
	Suggestion string `json:"suggestion"`
}

// RegisterRoutes registers assistant routes. Callers mount identity first.
func (h *AssistantHandler) RegisterRoutes(r chi.Router, stream http.Handler) {
	r.Route("/api/assistant", func(r chi.Router) {
		r.Get("/", h.GetSnapshot)
		r.Post("/refresh", h.Refresh)
		r.Post("/reset", h.Reset)
		r.Group(func(r chi.Router) {
			r.Use(h.limiter.Middleware(func(r *http.Request) string {
				return identity.UserIDFromContext(r.Context())
			}))
			r.Post("/messages", h.SendMessage)
			r.Post("/suggestions", h.UseSuggestion)
		})
		if stream != nil {
			r.Get("/ws", stream.ServeHTTP)
		}
	})
}

// manager resolves the caller's assistant, writing the error response on failure.
func (h *AssistantHandler) manager(w http.ResponseWriter, r *http.Request) (*assistant.Manager, string, bool) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "authentication required")
		return nil, "", false
	}
	mgr, err := h.reg.GetOrCreate(userID)
	if err != nil {
		Error(w, http.StatusServiceUnavailable, "assistant unavailable")
		return nil, "", false
	}
	return mgr, userID, true
}

// GetSnapshot returns the caller's conversation, suggestions and state.
func (h *AssistantHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	mgr, _, ok := h.manager(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, mgr.Snapshot())
}

// SendMessage forwards a free-text message.
func (h *AssistantHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mgr, userID, ok := h.manager(w, r)
	if !ok {
		return
	}
	h.send(w, r, mgr, userID, func(ctx context.Context) error {
		return mgr.SendMessage(ctx, req.Content)
	})
}

// UseSuggestion sends one of the offered suggestions verbatim.
func (h *AssistantHandler) UseSuggestion(w http.ResponseWriter, r *http.Request) {
	var req suggestionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mgr, userID, ok := h.manager(w, r)
	if !ok {
		return
	}
	h.send(w, r, mgr, userID, func(ctx context.Context) error {
		return mgr.UseSuggestion(ctx, req.Suggestion)
	})
}

// send runs fn detached from client disconnects so the reply always lands in
// the history; the manager's own send deadline still applies.
func (h *AssistantHandler) send(w http.ResponseWriter, r *http.Request, mgr *assistant.Manager, userID string, fn func(context.Context) error) {
	h.reg.Touch(userID)
	err := fn(context.WithoutCancel(r.Context()))
	h.reg.Touch(userID)

	switch {
	case err == nil, errors.Is(err, assistant.ErrSendFailed):
		// A failed send still produced a visible apology.
		JSON(w, http.StatusOK, mgr.Snapshot())
	default:
		status, msg := statusFor(err)
		h.logger.Debug("Assistant send rejected", "user_id", userID, "error", err)
		Error(w, status, msg)
	}
}

// Reset clears the conversation and re-initializes.
func (h *AssistantHandler) Reset(w http.ResponseWriter, r *http.Request) {
	mgr, userID, ok := h.manager(w, r)
	if !ok {
		return
	}
	h.reg.Touch(userID)
	if err := mgr.Reset(context.WithoutCancel(r.Context())); err != nil {
		if errors.Is(err, assistant.ErrClosed) {
			Error(w, http.StatusServiceUnavailable, "assistant unavailable")
			return
		}
		h.logger.Warn("Assistant reset failed", "user_id", userID, "error", err)
		JSON(w, http.StatusBadGateway, mgr.Snapshot())
		return
	}
	JSON(w, http.StatusOK, mgr.Snapshot())
}

// Refresh re-pulls the caller's mutual data and returns it.
func (h *AssistantHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	mgr, userID, ok := h.manager(w, r)
	if !ok {
		return
	}
	h.reg.Touch(userID)
	JSON(w, http.StatusOK, mgr.RefreshContext(r.Context()))
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, assistant.ErrEmptyMessage):
		return http.StatusBadRequest, "message is empty"
	case errors.Is(err, assistant.ErrBusy):
		return http.StatusConflict, "assistant is busy"
	case errors.Is(err, assistant.ErrNotReady):
		return http.StatusConflict, "assistant is not ready"
	case errors.Is(err, assistant.ErrClosed):
		return http.StatusServiceUnavailable, "assistant unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
