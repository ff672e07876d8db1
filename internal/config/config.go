// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	JWTSecret   string
	AppEnv      string

	Assistant       AssistantConfig
	RateLimit       RateLimitConfig
	ConversationLog ConversationLogConfig
}

// AssistantConfig controls the generative provider and per-user managers.
type AssistantConfig struct {
	Provider          string // "gemini" or "grpc"
	GoogleAPIKey      string
	ModelName         string
	GatewayAddr       string
	ConnectTimeout    time.Duration
	Temperature       float64
	InitTimeout       time.Duration
	SendTimeout       time.Duration // 0 disables the send deadline
	SuggestionTimeout time.Duration
	IdleTTL           time.Duration
}

// RateLimitConfig bounds message sends per user.
type RateLimitConfig struct {
	PerMinute int
	Burst     int
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/mutuelle.db"),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		AppEnv:      getEnv("APP_ENV", ""),
		Assistant: AssistantConfig{
			Provider:          strings.ToLower(getEnv("ASSISTANT_PROVIDER", "gemini")),
			GoogleAPIKey:      getEnv("GEMINI_API_KEY", getEnv("GOOGLE_API_KEY", "")),
			ModelName:         getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
			GatewayAddr:       getEnv("ASSISTANT_GATEWAY_ADDR", "localhost:50051"),
			ConnectTimeout:    getEnvDuration("ASSISTANT_CONNECT_TIMEOUT", 5*time.Second),
			Temperature:       getEnvFloat("ASSISTANT_TEMPERATURE", 0.7),
			InitTimeout:       getEnvDuration("ASSISTANT_INIT_TIMEOUT", 30*time.Second),
			SendTimeout:       getEnvDuration("ASSISTANT_SEND_TIMEOUT", 60*time.Second),
			SuggestionTimeout: getEnvDuration("ASSISTANT_SUGGESTION_TIMEOUT", 15*time.Second),
			IdleTTL:           getEnvDuration("ASSISTANT_IDLE_TTL", 60*time.Minute),
		},
		RateLimit: RateLimitConfig{
			PerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 20),
			Burst:     getEnvInt("RATE_LIMIT_BURST", 5),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.JWTSecret == "" && !c.IsDevelopment() {
		return fmt.Errorf("JWT_SECRET is required outside development")
	}
	switch c.Assistant.Provider {
	case "gemini":
		if c.Assistant.GoogleAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for the gemini provider")
		}
	case "grpc":
		if c.Assistant.GatewayAddr == "" {
			return fmt.Errorf("ASSISTANT_GATEWAY_ADDR is required for the grpc provider")
		}
	default:
		return fmt.Errorf("ASSISTANT_PROVIDER must be gemini or grpc, got %q", c.Assistant.Provider)
	}
	if c.Assistant.InitTimeout <= 0 {
		return fmt.Errorf("ASSISTANT_INIT_TIMEOUT must be > 0")
	}
	if c.Assistant.SendTimeout < 0 {
		return fmt.Errorf("ASSISTANT_SEND_TIMEOUT must be >= 0")
	}
	if c.Assistant.IdleTTL <= 0 {
		return fmt.Errorf("ASSISTANT_IDLE_TTL must be > 0")
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	if c.AppEnv != "" {
		return c.AppEnv == "development"
	}
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins lists the CORS origins for the configured frontend.
func (c *Config) AllowedOrigins() []string {
	if c.FrontendURL != "" {
		return []string{c.FrontendURL}
	}
	return []string{"http://localhost:5173", "http://localhost:3000"}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// getEnvDuration accepts Go durations ("45s") or bare seconds ("45").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
