package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIOptions configures an OpenAIClient. Empty model names take the
// package defaults.
type OpenAIOptions struct {
	APIKey          string
	BaseURL         string
	ChatModel       string
	VisionModel     string
	TranscribeModel string
	SpeechModel     string

	// OpenRouter (optional)
	Referrer string
	Title    string
}

const (
	defaultChatModel       = "gpt-3.5-turbo"
	defaultVisionModel     = "gpt-4o-mini"
	defaultTranscribeModel = openai.Whisper1
	defaultSpeechModel     = string(openai.TTSModel1)

	chatTemperature = 0.7
	chatMaxTokens   = 1000
)

type OpenAIClient struct {
	client          *openai.Client
	model           string
	visionModel     string
	transcribeModel string
	speechModel     string
}

type headerTransport struct {
	rt      http.RoundTripper
	headers http.Header
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone request to avoid mutating the original
	cl := req.Clone(req.Context())
	for k, vs := range t.headers {
		for _, v := range vs {
			cl.Header.Add(k, v)
		}
	}
	return t.rt.RoundTrip(cl)
}

func NewOpenAI(opts OpenAIOptions) *OpenAIClient {
	config := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		config.BaseURL = opts.BaseURL
	}
	// Inject optional headers (useful for OpenRouter)
	if opts.Referrer != "" || opts.Title != "" {
		h := http.Header{}
		if opts.Referrer != "" {
			h.Set("HTTP-Referer", opts.Referrer)
		}
		if opts.Title != "" {
			h.Set("X-Title", opts.Title)
		}
		config.HTTPClient = &http.Client{Transport: headerTransport{rt: http.DefaultTransport, headers: h}}
	}
	return &OpenAIClient{
		client:          openai.NewClientWithConfig(config),
		model:           orDefault(opts.ChatModel, defaultChatModel),
		visionModel:     orDefault(opts.VisionModel, defaultVisionModel),
		transcribeModel: orDefault(opts.TranscribeModel, defaultTranscribeModel),
		speechModel:     orDefault(opts.SpeechModel, defaultSpeechModel),
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, systemPrompt string, messages []Message) (Response, error) {
	oaMsgs := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if systemPrompt != "" {
		oaMsgs = append(oaMsgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	for _, m := range messages {
		oaMsgs = append(oaMsgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    oaMsgs,
		Temperature: chatTemperature,
		MaxTokens:   chatMaxTokens,
	})
	if err != nil {
		return Response{}, providerErr(OpChat, fmt.Errorf("failed to create chat completion: %w", err))
	}
	if len(resp.Choices) == 0 {
		return Response{}, providerErr(OpChat, errors.New("chat completion returned no choices"))
	}

	return Response{
		Content:          resp.Choices[0].Message.Content,
		Model:            c.model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}, nil
}

func (c *OpenAIClient) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if filename == "" {
		filename = "voice.ogg"
	}
	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.transcribeModel,
		FilePath: filename,
		Reader:   bytes.NewReader(audio),
	})
	if err != nil {
		return "", providerErr(OpTranscribe, fmt.Errorf("failed to transcribe audio: %w", err))
	}
	return strings.TrimSpace(resp.Text), nil
}

// Describe sends the image inline as a base64 data URL next to prompt.
func (c *OpenAIClient) Describe(ctx context.Context, image []byte, mimeType, prompt string) (string, error) {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.visionModel,
		MaxTokens: chatMaxTokens,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: prompt},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
					URL:    dataURL,
					Detail: openai.ImageURLDetailAuto,
				}},
			},
		}},
	})
	if err != nil {
		return "", providerErr(OpDescribe, fmt.Errorf("failed to describe image: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", providerErr(OpDescribe, errors.New("vision completion returned no choices"))
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Synthesize returns Opus audio, which Telegram accepts as a voice note.
func (c *OpenAIClient) Synthesize(ctx context.Context, text, voice string, speed float64) ([]byte, error) {
	raw, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(c.speechModel),
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatOpus,
		Speed:          speed,
	})
	if err != nil {
		return nil, providerErr(OpSynthesize, fmt.Errorf("failed to synthesize speech: %w", err))
	}
	defer raw.Close()
	audio, err := io.ReadAll(raw)
	if err != nil {
		return nil, providerErr(OpSynthesize, fmt.Errorf("read speech body: %w", err))
	}
	return audio, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
