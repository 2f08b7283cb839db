package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
)

type LLMProvider string

const (
	ProviderOpenAI LLMProvider = "openai"
	ProviderYandex LLMProvider = "yandex"
)

type Config struct {
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN,required"`
	AdminUserID      int64  `env:"ADMIN_USER"`

	// LLM settings
	LLMProvider           LLMProvider `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey          string      `env:"OPENAI_API_KEY"`
	OpenAIBaseURL         string      `env:"OPENAI_BASE_URL"`
	OpenAIModel           string      `env:"OPENAI_MODEL" envDefault:"gpt-3.5-turbo"`
	OpenAIVisionModel     string      `env:"OPENAI_VISION_MODEL" envDefault:"gpt-4o-mini"`
	OpenAITranscribeModel string      `env:"OPENAI_TRANSCRIBE_MODEL" envDefault:"whisper-1"`
	OpenAITTSModel        string      `env:"OPENAI_TTS_MODEL" envDefault:"tts-1"`
	YandexOAuthToken      string      `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID        string      `env:"YANDEX_FOLDER_ID"`

	// OpenRouter (optional)
	OpenRouterReferrer string `env:"OPENROUTER_REFERRER"`
	OpenRouterTitle    string `env:"OPENROUTER_TITLE"`

	// Personas
	PersonasPath string `env:"PERSONAS_PATH" envDefault:"config/personas.yaml"`

	// Conversation history
	HistoryExpiryHours int `env:"HISTORY_EXPIRY_HOURS" envDefault:"24"`
	MaxHistoryLength   int `env:"MAX_HISTORY_LENGTH" envDefault:"50"`

	// Per-minute quotas
	RateLimitChat          int `env:"RATE_LIMIT_CHAT" envDefault:"3500"`
	RateLimitVision        int `env:"RATE_LIMIT_VISION" envDefault:"50"`
	RateLimitTranscription int `env:"RATE_LIMIT_TRANSCRIPTION" envDefault:"50"`
	RateLimitSynthesis     int `env:"RATE_LIMIT_SYNTHESIS" envDefault:"50"`

	// Attachments
	MaxVoiceBytes int64 `env:"MAX_VOICE_BYTES" envDefault:"10485760"`
	MaxImageBytes int64 `env:"MAX_IMAGE_BYTES" envDefault:"5242880"`

	// Provider calls
	ProviderTimeout       time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"60s"`
	ProviderRetryAttempts int           `env:"PROVIDER_RETRY_ATTEMPTS" envDefault:"1"`
	ProviderRetryDelay    time.Duration `env:"PROVIDER_RETRY_DELAY" envDefault:"500ms"`
	ReplyVoiceToVoice     bool          `env:"REPLY_VOICE_TO_VOICE" envDefault:"false"`

	// Storage
	LogFilePath string `env:"LOG_FILE_PATH" envDefault:"logs/interactions.jsonl"`

	// Observability
	LogLevel        string `env:"LOG_LEVEL" envDefault:"info"`
	MetricsAddr     string `env:"METRICS_ADDR"`
	DailyReportCron string `env:"DAILY_REPORT_CRON" envDefault:"0 21 * * *"`
}

// Load parses the environment and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.TelegramBotToken) == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN must not be empty")
	}
	switch c.LLMProvider {
	case ProviderOpenAI, ProviderYandex:
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}
	positive := map[string]int64{
		"HISTORY_EXPIRY_HOURS":     int64(c.HistoryExpiryHours),
		"MAX_HISTORY_LENGTH":       int64(c.MaxHistoryLength),
		"RATE_LIMIT_CHAT":          int64(c.RateLimitChat),
		"RATE_LIMIT_VISION":        int64(c.RateLimitVision),
		"RATE_LIMIT_TRANSCRIPTION": int64(c.RateLimitTranscription),
		"RATE_LIMIT_SYNTHESIS":     int64(c.RateLimitSynthesis),
		"MAX_VOICE_BYTES":          c.MaxVoiceBytes,
		"MAX_IMAGE_BYTES":          c.MaxImageBytes,
		"PROVIDER_TIMEOUT":         int64(c.ProviderTimeout),
	}
	for name, v := range positive {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, v)
		}
	}
	return nil
}

func (c *Config) HistoryExpiry() time.Duration {
	return time.Duration(c.HistoryExpiryHours) * time.Hour
}
