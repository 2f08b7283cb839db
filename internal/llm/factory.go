package llm

import (
	"fmt"
	"strings"

	"role-chatter/internal/config"
)

const (
	ProviderOpenAI = "openai"
	ProviderYandex = "yandex"
)

// Factory creates providers with consistent logic
type Factory struct {
	OpenAI           OpenAIOptions
	YandexOAuthToken string
	YandexFolderID   string
}

func NewFactory(cfg *config.Config) *Factory {
	return &Factory{
		OpenAI: OpenAIOptions{
			APIKey:          cfg.OpenAIAPIKey,
			BaseURL:         cfg.OpenAIBaseURL,
			ChatModel:       cfg.OpenAIModel,
			VisionModel:     cfg.OpenAIVisionModel,
			TranscribeModel: cfg.OpenAITranscribeModel,
			SpeechModel:     cfg.OpenAITTSModel,
			Referrer:        cfg.OpenRouterReferrer,
			Title:           cfg.OpenRouterTitle,
		},
		YandexOAuthToken: cfg.YandexOAuthToken,
		YandexFolderID:   cfg.YandexFolderID,
	}
}

// CreateProvider returns the provider whose chat completions come from the
// named backend. Media operations always use OpenAI.
func (f *Factory) CreateProvider(provider string) (Provider, error) {
	media := NewOpenAI(f.OpenAI)
	switch strings.ToLower(provider) {
	case ProviderOpenAI, "":
		return media, nil
	case ProviderYandex:
		ya, err := NewYandex(f.YandexOAuthToken, f.YandexFolderID)
		if err != nil {
			return nil, err
		}
		return Compose(ya, media), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", provider)
	}
}
