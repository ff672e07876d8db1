package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"google.golang.org/genai"
)

// GeminiClient talks to the Gemini API through the genai SDK.
type GeminiClient struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
	logger *slog.Logger
}

// NewGeminiClient creates a Gemini-backed provider.
func NewGeminiClient(ctx context.Context, cfg Config, logger *slog.Logger) (*GeminiClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.GoogleAPIKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	model := cfg.ModelName
	if model == "" {
		model = DefaultConfig().ModelName
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GoogleAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	logger.Info("Gemini provider ready", "model", model)

	return &GeminiClient{
		client: client,
		model:  model,
		config: &genai.GenerateContentConfig{
			Temperature: genai.Ptr(cfg.Temperature),
		},
		logger: logger,
	}, nil
}

// Open starts a chat whose history is the seed pair.
func (c *GeminiClient) Open(ctx context.Context, seed Seed) (Session, error) {
	history := make([]*genai.Content, 0, 2)
	for _, turn := range seed.Turns() {
		role := genai.Role(genai.RoleUser)
		if turn.Role == RoleModel {
			role = genai.RoleModel
		}
		history = append(history, genai.NewContentFromText(turn.Text, role))
	}

	chat, err := c.client.Chats.Create(ctx, c.model, c.config, history)
	if err != nil {
		return nil, fmt.Errorf("create gemini chat: %w", err)
	}
	return &geminiSession{chat: chat}, nil
}

// Generate answers a one-shot prompt.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), c.config)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return responseText(resp)
}

// Close releases resources. The genai client holds no connection of its own.
func (c *GeminiClient) Close() {}

type geminiSession struct {
	mu     sync.Mutex
	chat   *genai.Chat
	closed bool
}

func (s *geminiSession) Send(ctx context.Context, text string) (string, error) {
	// genai.Chat appends to its history and is not safe for concurrent sends.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrSessionClosed
	}

	resp, err := s.chat.SendMessage(ctx, genai.Part{Text: text})
	if err != nil {
		return "", fmt.Errorf("gemini send: %w", err)
	}
	return responseText(resp)
}

func (s *geminiSession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", ErrEmptyResponse
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
