package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.False(t, cfg.Database.Enabled)
	assert.Equal(t, "groq", cfg.DefaultProvider)

	assert.Equal(t, 8192, cfg.Chat.TokenBudget)
	assert.Equal(t, 8, cfg.Chat.FragmentCap)
	assert.Equal(t, float32(0), cfg.Chat.Temperature)
	assert.Equal(t, 1024, cfg.Chat.MaxTokens)
	assert.NotEmpty(t, cfg.Chat.SystemPrompt)

	assert.Equal(t, 30*time.Minute, cfg.Session.IdleTTL)
	assert.Equal(t, time.Minute, cfg.Session.SweepInterval)
	assert.True(t, cfg.Session.AutoCreate)
	assert.Equal(t, "block", cfg.Session.BusyPolicy)

	assert.Equal(t, 3, cfg.Dispatch.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Dispatch.BaseBackoff)
	assert.Equal(t, 2*time.Minute, cfg.Dispatch.CallTimeout)
}

func TestLoad_DefaultProviders(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	groq, ok := cfg.Providers["groq"]
	require.True(t, ok)
	assert.Equal(t, "openai-compatible", groq.Type)
	assert.Equal(t, "https://api.groq.com/openai/v1", groq.BaseURL)
	assert.Equal(t, "llama3-70b-8192", groq.DefaultModel)
	assert.Equal(t, []string{"llama3-8b-8192", "mixtral-8x7b-32768", "gemma2-9b-it"}, groq.FallbackModels)

	openai, ok := cfg.Providers["openai"]
	require.True(t, ok)
	assert.Equal(t, "openai", openai.Type)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SHOPDESK_PORT", "9090")
	t.Setenv("SHOPDESK_HOST", "0.0.0.0")
	t.Setenv("GROQ_API_KEY", "gsk_test")
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("POSTGRES_USER", "svc")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "gsk_test", cfg.Providers["groq"].APIKey)

	assert.True(t, cfg.Database.Enabled, "a database host implies the database is in use")
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "svc", cfg.Database.User)
}
