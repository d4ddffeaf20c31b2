package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vovarama1992/rental-intake-bot/internal/intake"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"PORT", "LOG_LEVEL", "DATABASE_URL", "REDIS_ADDR", "OPENAI_API_KEY", "OPENAI_MODEL",
		"OPENAI_TEMPERATURE", "MAX_HISTORY", "TELEGRAM_BOT_TOKEN", "TELEGRAM_OPERATOR_IDS",
		"AVITO_ACCESS_TOKEN", "AVITO_USER_ID", "AVITO_POLL_INTERVAL", "LLM_TIMEOUT", "COMPLETION_MARKER",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "intake.db", cfg.DatabaseURL)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAIModel)
	assert.InDelta(t, 0.7, cfg.Temperature, 0.001)
	assert.Equal(t, 20, cfg.MaxHistory)
	assert.Equal(t, 10*time.Second, cfg.AvitoPollInterval)
	assert.Equal(t, 60*time.Second, cfg.AvitoErrorBackoff)
	assert.Empty(t, cfg.OperatorIDs)
	assert.False(t, cfg.TelegramEnabled())
	assert.False(t, cfg.AvitoEnabled())
	assert.False(t, cfg.RedisEnabled())

	assert.EqualError(t, cfg.Validate(), "config: OPENAI_API_KEY is not set")
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_MODEL", "gpt-4o")
	t.Setenv("OPENAI_TEMPERATURE", "0.3")
	t.Setenv("MAX_HISTORY", "8")
	t.Setenv("LLM_TIMEOUT", "15s")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_OPERATOR_IDS", "111, 222,bad,,333")
	t.Setenv("AVITO_ACCESS_TOKEN", "tok")
	t.Setenv("AVITO_USER_ID", "98765")
	t.Setenv("COMPLETION_MARKER", "[DONE]")

	cfg := Load()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []int64{111, 222, 333}, cfg.OperatorIDs)
	assert.Equal(t, int64(98765), cfg.AvitoUserID)
	assert.True(t, cfg.TelegramEnabled())
	assert.True(t, cfg.AvitoEnabled())

	eng := cfg.Engine()
	assert.Equal(t, "gpt-4o", eng.Model)
	assert.InDelta(t, 0.3, eng.Temperature, 0.001)
	assert.Equal(t, 8, eng.MaxHistory)
	assert.Equal(t, 15*time.Second, eng.LLMTimeout)
	assert.Equal(t, "[DONE]", eng.CompletionMarker)
	assert.Equal(t, intake.DefaultFirstTurnInstruction, eng.FirstTurnInstruction)
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	t.Run("avito without user id", func(t *testing.T) {
		t.Setenv("AVITO_ACCESS_TOKEN", "tok")
		assert.Error(t, Load().Validate())
	})

	t.Run("bad temperature", func(t *testing.T) {
		t.Setenv("OPENAI_TEMPERATURE", "3.5")
		assert.Error(t, Load().Validate())
	})

	t.Run("non-positive history", func(t *testing.T) {
		t.Setenv("MAX_HISTORY", "0")
		assert.Error(t, Load().Validate())
	})

	t.Run("malformed values fall back to defaults", func(t *testing.T) {
		t.Setenv("MAX_HISTORY", "lots")
		t.Setenv("LLM_TIMEOUT", "soon")
		cfg := Load()
		assert.Equal(t, 20, cfg.MaxHistory)
		assert.Equal(t, 60*time.Second, cfg.LLMTimeout)
		assert.NoError(t, cfg.Validate())
	})
}
