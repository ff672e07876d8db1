package agent

import (
	"context"
)

// SessionAdapter opens conversations against a generative-language service.
// Implementations hold no business logic so tests can substitute a stub.
type SessionAdapter interface {
	// Open establishes a conversation primed with the two seed turns.
	Open(ctx context.Context, seed Seed) (Session, error)
}

// Session is one open multi-turn conversation.
type Session interface {
	// Send forwards one user message and returns the generated text.
	Send(ctx context.Context, text string) (string, error)

	// Close releases the conversation on the remote side, if it has one.
	Close() error
}

// Generator answers a single prompt outside of any conversation.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Provider is a generative-language backend able to serve both
// conversations and one-shot requests.
type Provider interface {
	SessionAdapter
	Generator

	// Close releases resources
	Close()
}

var (
	_ Provider = (*GrpcClient)(nil)
	_ Provider = (*GeminiClient)(nil)
	_ Provider = (*Service)(nil)
)
