package llm

import (
	"context"
	"errors"
	"fmt"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string
	Content string
}

type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatCompleter answers a conversation framed by a system prompt.
type ChatCompleter interface {
	Complete(ctx context.Context, systemPrompt string, messages []Message) (Response, error)
}

// Transcriber turns recorded speech into text. filename carries the
// container format (e.g. "voice.ogg").
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Describer captions an image following prompt.
type Describer interface {
	Describe(ctx context.Context, image []byte, mimeType, prompt string) (string, error)
}

// Synthesizer renders text as speech in the given voice and speed.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string, speed float64) ([]byte, error)
}

// Provider is the full set of remote model operations the bot relies on.
type Provider interface {
	ChatCompleter
	Transcriber
	Describer
	Synthesizer
}

// Operation names used in errors, logs and metrics.
const (
	OpChat       = "chat"
	OpTranscribe = "transcribe"
	OpDescribe   = "describe"
	OpSynthesize = "synthesize"
)

// ProviderError wraps any failure of a remote model operation, including
// timeouts and empty responses.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func providerErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Op: op, Err: err}
}

type composite struct {
	ChatCompleter
	media Provider
}

// Compose answers chat with chat and routes every media operation to media.
func Compose(chat ChatCompleter, media Provider) Provider {
	return composite{ChatCompleter: chat, media: media}
}

func (c composite) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	return c.media.Transcribe(ctx, audio, filename)
}

func (c composite) Describe(ctx context.Context, image []byte, mimeType, prompt string) (string, error) {
	return c.media.Describe(ctx, image, mimeType, prompt)
}

func (c composite) Synthesize(ctx context.Context, text, voice string, speed float64) ([]byte, error) {
	return c.media.Synthesize(ctx, text, voice, speed)
}
