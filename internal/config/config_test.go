package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, cfg.LLMProvider)
	assert.Equal(t, 24*time.Hour, cfg.HistoryExpiry())
	assert.Equal(t, 50, cfg.MaxHistoryLength)
	assert.Equal(t, 3500, cfg.RateLimitChat)
	assert.Equal(t, 50, cfg.RateLimitVision)
	assert.Equal(t, 50, cfg.RateLimitTranscription)
	assert.Equal(t, 50, cfg.RateLimitSynthesis)
	assert.Equal(t, 60*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, "config/personas.yaml", cfg.PersonasPath)
	assert.False(t, cfg.ReplyVoiceToVoice)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("HISTORY_EXPIRY_HOURS", "2")
	t.Setenv("MAX_HISTORY_LENGTH", "10")
	t.Setenv("RATE_LIMIT_VISION", "5")
	t.Setenv("PROVIDER_TIMEOUT", "15s")
	t.Setenv("LLM_PROVIDER", "yandex")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, cfg.HistoryExpiry())
	assert.Equal(t, 10, cfg.MaxHistoryLength)
	assert.Equal(t, 5, cfg.RateLimitVision)
	assert.Equal(t, 15*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, ProviderYandex, cfg.LLMProvider)
}

func TestLoad_RequiresToken(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	_, err := Load()
	assert.Error(t, err)

	require.NoError(t, os.Unsetenv("TELEGRAM_BOT_TOKEN"))
	_, err = Load()
	assert.Error(t, err)
}

func TestValidate_RejectsNonPositive(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("MAX_HISTORY_LENGTH", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_HISTORY_LENGTH")
}

func TestValidate_RejectsUnknownProvider(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("LLM_PROVIDER", "ollama")
	_, err := Load()
	assert.Error(t, err)
}
