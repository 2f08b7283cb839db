package llm

import (
	"context"
	"time"
)

// CallObserver records the outcome and latency of provider calls.
type CallObserver interface {
	ObserveProviderCall(op string, took time.Duration, err error)
}

type instrumented struct {
	next Provider
	obs  CallObserver
}

// Instrument reports every call made through p to obs.
func Instrument(p Provider, obs CallObserver) Provider {
	if obs == nil {
		return p
	}
	return &instrumented{next: p, obs: obs}
}

func (i *instrumented) Complete(ctx context.Context, systemPrompt string, messages []Message) (Response, error) {
	start := time.Now()
	resp, err := i.next.Complete(ctx, systemPrompt, messages)
	i.obs.ObserveProviderCall(OpChat, time.Since(start), err)
	return resp, err
}

func (i *instrumented) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	start := time.Now()
	text, err := i.next.Transcribe(ctx, audio, filename)
	i.obs.ObserveProviderCall(OpTranscribe, time.Since(start), err)
	return text, err
}

func (i *instrumented) Describe(ctx context.Context, image []byte, mimeType, prompt string) (string, error) {
	start := time.Now()
	text, err := i.next.Describe(ctx, image, mimeType, prompt)
	i.obs.ObserveProviderCall(OpDescribe, time.Since(start), err)
	return text, err
}

func (i *instrumented) Synthesize(ctx context.Context, text, voice string, speed float64) ([]byte, error) {
	start := time.Now()
	audio, err := i.next.Synthesize(ctx, text, voice, speed)
	i.obs.ObserveProviderCall(OpSynthesize, time.Since(start), err)
	return audio, err
}
