package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "LLM_PROVIDER", "LLM_MODEL", "LLM_MAX_TOKENS", "NATS_URL", "CATALOG_FILE", "CORS_ALLOWED_ORIGINS", "ENV"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "openai", cfg.LLMProvider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLMModel)
	assert.Equal(t, 500, cfg.LLMMaxTokens)
	assert.Empty(t, cfg.NATSURL)
	assert.Empty(t, cfg.CatalogFile)
	assert.True(t, cfg.CatalogWatch)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTTL)
	assert.Equal(t, 256, cfg.SubscriberBuffer)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LLM_PROVIDER", "anthropic")
	t.Setenv("LLM_MAX_TOKENS", "300")
	t.Setenv("LLM_TEMPERATURE", "0.4")
	t.Setenv("SESSION_IDLE_TTL", "5m")
	t.Setenv("CATALOG_WATCH", "false")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://kainos.lt, https://app.kainos.lt,")
	t.Setenv("ENV", "development")

	cfg := Load()

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, "anthropic", cfg.LLMProvider)
	assert.Equal(t, 300, cfg.LLMMaxTokens)
	assert.InDelta(t, 0.4, cfg.LLMTemperature, 1e-9)
	assert.Equal(t, 5*time.Minute, cfg.SessionIdleTTL)
	assert.False(t, cfg.CatalogWatch)
	assert.Equal(t, []string{"https://kainos.lt", "https://app.kainos.lt"}, cfg.AllowedOrigins)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_IgnoresMalformedValues(t *testing.T) {
	t.Setenv("LLM_MAX_TOKENS", "lots")
	t.Setenv("SESSION_IDLE_TTL", "soon")
	t.Setenv("TRACING_ENABLED", "maybe")

	cfg := Load()

	assert.Equal(t, 500, cfg.LLMMaxTokens)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTTL)
	assert.False(t, cfg.TracingEnabled)
}
