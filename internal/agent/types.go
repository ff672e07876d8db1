// Package agent is the boundary around the external generative-language service.
package agent

import (
	"errors"
	"strings"
	"time"
)

// Turn roles, as the generative service names them.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Provider names accepted by Config.Provider.
const (
	ProviderGemini = "gemini"
	ProviderGRPC   = "grpc"
)

var (
	// ErrEmptyResponse is returned when the service answers with no text.
	ErrEmptyResponse = errors.New("empty response from generative service")
	// ErrSessionClosed is returned when sending on a closed session.
	ErrSessionClosed = errors.New("session closed")
	// ErrUnknownProvider is returned by New for an unsupported provider name.
	ErrUnknownProvider = errors.New("unknown assistant provider")
)

// Turn is one message of a conversation history.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Seed primes a new conversation: the compiled prompt as the user turn,
// followed by the scripted acknowledgment as the model turn.
type Seed struct {
	UserID         string
	Prompt         string
	Acknowledgment string
}

// Turns returns the two seed turns in order.
func (s Seed) Turns() []Turn {
	return []Turn{
		{Role: RoleUser, Text: s.Prompt},
		{Role: RoleModel, Text: s.Acknowledgment},
	}
}

// Config holds agent configuration.
type Config struct {
	Provider       string
	ModelName      string
	GoogleAPIKey   string
	GatewayAddr    string
	ConnectTimeout time.Duration
	Temperature    float32
}

// DefaultConfig returns default agent configuration.
func DefaultConfig() Config {
	return Config{
		Provider:       ProviderGemini,
		ModelName:      "gemini-2.0-flash",
		GatewayAddr:    "localhost:50051",
		ConnectTimeout: 5 * time.Second,
		Temperature:    0.7,
	}
}

func normalizeProvider(p string) string {
	return strings.ToLower(strings.TrimSpace(p))
}
