package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Conversation log event types.
const (
	EventSessionOpened    = "assistant_session_opened"
	EventUserMessage      = "assistant_user_message"
	EventAssistantMessage = "assistant_model_message"
	EventSendFailed       = "assistant_send_failed"

	logChannel = "assistant"
)

// Service wraps a Provider and records every exchange in the conversation log.
type Service struct {
	provider Provider
	log      ConversationLogger
}

// NewService creates a new agent service around a provider.
func NewService(provider Provider, conversationLogger ConversationLogger) *Service {
	if conversationLogger == nil {
		conversationLogger = noopConversationLogger{}
	}
	return &Service{
		provider: provider,
		log:      conversationLogger,
	}
}

// New builds the provider named in cfg.Provider.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Provider, error) {
	switch normalizeProvider(cfg.Provider) {
	case ProviderGemini, "":
		return NewGeminiClient(ctx, cfg, logger)
	case ProviderGRPC:
		grpcCfg := DefaultGrpcClientConfig()
		if cfg.GatewayAddr != "" {
			grpcCfg.Address = cfg.GatewayAddr
		}
		if cfg.ConnectTimeout > 0 {
			grpcCfg.ConnectTimeout = cfg.ConnectTimeout
		}
		return NewGrpcClient(grpcCfg, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// Open opens a provider session and tags it with a log session ID.
func (s *Service) Open(ctx context.Context, seed Seed) (Session, error) {
	sess, err := s.provider.Open(ctx, seed)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	if v7, err := uuid.NewV7(); err == nil {
		id = v7.String()
	}

	s.log.Log(ConversationLogEvent{
		UserID:     seed.UserID,
		SessionID:  id,
		Channel:    logChannel,
		Direction:  "outbound",
		EventType:  EventSessionOpened,
		ContentRaw: seed.Prompt,
	})
	return &loggedSession{Session: sess, log: s.log, userID: seed.UserID, sessionID: id}, nil
}

// Generate forwards a one-shot prompt.
func (s *Service) Generate(ctx context.Context, prompt string) (string, error) {
	return s.provider.Generate(ctx, prompt)
}

// Close releases resources.
func (s *Service) Close() {
	if s.provider != nil {
		s.provider.Close()
	}
	if err := s.log.Close(); err != nil {
		slog.Warn("failed to close conversation logger", "error", err)
	}
}

type loggedSession struct {
	Session
	log       ConversationLogger
	userID    string
	sessionID string
}

func (s *loggedSession) Send(ctx context.Context, text string) (string, error) {
	s.log.Log(ConversationLogEvent{
		UserID:     s.userID,
		SessionID:  s.sessionID,
		Channel:    logChannel,
		Direction:  "outbound",
		EventType:  EventUserMessage,
		ContentRaw: text,
	})

	start := time.Now()
	reply, err := s.Session.Send(ctx, text)
	if err != nil {
		s.log.Log(ConversationLogEvent{
			UserID:     s.userID,
			SessionID:  s.sessionID,
			Channel:    logChannel,
			Direction:  "inbound",
			EventType:  EventSendFailed,
			ContentRaw: err.Error(),
			Meta:       map[string]any{"duration_ms": time.Since(start).Milliseconds()},
		})
		return "", err
	}

	s.log.Log(ConversationLogEvent{
		UserID:     s.userID,
		SessionID:  s.sessionID,
		Channel:    logChannel,
		Direction:  "inbound",
		EventType:  EventAssistantMessage,
		ContentRaw: reply,
		Meta:       map[string]any{"duration_ms": time.Since(start).Milliseconds()},
	})
	return reply, nil
}
