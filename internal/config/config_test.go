package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "ENV", "LOG_LEVEL", "CLINIC_TIMEZONE", "DEFAULT_SLOT_MINUTES",
		"AVAIL_LOOKAHEAD_DAYS", "WINDOW_MANHA", "AI_TEMPERATURE", "AI_MAX_TOKENS",
		"LLM_TIMEOUT", "GATEWAY_TIMEOUT", "AI_PROVIDER", "DEDUP_WINDOW",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "America/Sao_Paulo", cfg.ClinicTimezone)
	assert.Equal(t, 30, cfg.SlotMinutes)
	assert.Equal(t, 14, cfg.LookaheadDays)
	assert.Equal(t, "08:00-12:00", cfg.WindowMorning)
	assert.Equal(t, "12:00-18:00", cfg.WindowAfternoon)
	assert.Equal(t, "18:00-21:00", cfg.WindowEvening)
	assert.InDelta(t, 0.4, cfg.AITemperature, 1e-9)
	assert.Equal(t, 200, cfg.AIMaxTokens)
	assert.Equal(t, 30*time.Second, cfg.LLMTimeout)
	assert.Equal(t, 30*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, "gemini", cfg.AIProvider)
	assert.Equal(t, 10*time.Minute, cfg.DedupWindow)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("AI_PROVIDER", " OpenAI ")
	t.Setenv("AI_TEMPERATURE", "0.7")
	t.Setenv("WINDOW_TARDE", "13:00-17:00")
	t.Setenv("GATEWAY_TIMEOUT", "5s")
	t.Setenv("LLM_TIMEOUT", "12")
	t.Setenv("USE_MEMORY_QUEUE", "true")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "postgres://user@host/db", cfg.DatabaseURL)
	assert.Equal(t, "openai", cfg.AIProvider)
	assert.InDelta(t, 0.7, cfg.AITemperature, 1e-9)
	assert.Equal(t, "13:00-17:00", cfg.WindowAfternoon)
	assert.Equal(t, 5*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, 12*time.Second, cfg.LLMTimeout)
	assert.True(t, cfg.UseMemoryQueue)
}

func TestGetEnvAsDurationFallsBackOnGarbage(t *testing.T) {
	t.Setenv("CONVERSATION_LOCK_TTL", "soon")
	assert.Equal(t, 45*time.Second, Load().ConversationLockTTL)
}
