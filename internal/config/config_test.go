package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "k")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "./data/mutuelle.db", cfg.DBPath)
	assert.Equal(t, "gemini", cfg.Assistant.Provider)
	assert.Equal(t, 60*time.Second, cfg.Assistant.SendTimeout)
	assert.Equal(t, 60*time.Minute, cfg.Assistant.IdleTTL)
	assert.Equal(t, 20, cfg.RateLimit.PerMinute)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ASSISTANT_PROVIDER", "GRPC")
	t.Setenv("ASSISTANT_GATEWAY_ADDR", "gateway:50051")
	t.Setenv("ASSISTANT_SEND_TIMEOUT", "0")
	t.Setenv("ASSISTANT_INIT_TIMEOUT", "45")
	t.Setenv("ASSISTANT_SUGGESTION_TIMEOUT", "2s")
	t.Setenv("CONVERSATION_LOG_ENABLED", "off")
	t.Setenv("CONVERSATION_LOG_QUEUE_SIZE", "-4")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "grpc", cfg.Assistant.Provider)
	assert.Equal(t, "gateway:50051", cfg.Assistant.GatewayAddr)
	assert.Zero(t, cfg.Assistant.SendTimeout)
	assert.Equal(t, 45*time.Second, cfg.Assistant.InitTimeout)
	assert.Equal(t, 2*time.Second, cfg.Assistant.SuggestionTimeout)
	assert.False(t, cfg.ConversationLog.Enabled)
	assert.Equal(t, 1000, cfg.ConversationLog.QueueSize)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() Config {
		return Config{
			Port:   "8080",
			DBPath: "db",
			Assistant: AssistantConfig{
				Provider:     "gemini",
				GoogleAPIKey: "k",
				InitTimeout:  time.Second,
				IdleTTL:      time.Minute,
			},
			ConversationLog: ConversationLogConfig{Dir: "d", GlobalPath: "g", QueueSize: 1},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{name: "valid", mutate: func(*Config) {}, ok: true},
		{name: "missing key", mutate: func(c *Config) { c.Assistant.GoogleAPIKey = "" }},
		{name: "unknown provider", mutate: func(c *Config) { c.Assistant.Provider = "openai" }},
		{name: "negative send timeout", mutate: func(c *Config) { c.Assistant.SendTimeout = -time.Second }},
		{name: "production without secret", mutate: func(c *Config) { c.FrontendURL = "https://mutuelle.example" }},
		{name: "production with secret", mutate: func(c *Config) {
			c.FrontendURL = "https://mutuelle.example"
			c.JWTSecret = "s"
		}, ok: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := base()
			tt.mutate(&c)
			err := c.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
