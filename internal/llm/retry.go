package llm

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig bounds the exponential backoff applied by WithRetry.
type RetryConfig struct {
	// MaxAttempts counts the first call. Values below 2 disable retrying.
	MaxAttempts int
	// InitialDelay is the wait before the second attempt; it doubles after.
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

var DefaultRetryConfig = RetryConfig{
	MaxAttempts:  3,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     10 * time.Second,
}

type retrying struct {
	next Provider
	cfg  RetryConfig
}

// WithRetry retries every operation of p on failure. It returns p unchanged
// when cfg allows a single attempt.
func WithRetry(p Provider, cfg RetryConfig) Provider {
	if cfg.MaxAttempts < 2 {
		return p
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultRetryConfig.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultRetryConfig.MaxDelay
	}
	return &retrying{next: p, cfg: cfg}
}

func (r *retrying) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialDelay
	b.MaxInterval = r.cfg.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.cfg.MaxAttempts-1)), ctx)
}

func (r *retrying) do(ctx context.Context, fn func() error) error {
	return backoff.Retry(func() error {
		err := fn()
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}, r.policy(ctx))
}

func (r *retrying) Complete(ctx context.Context, systemPrompt string, messages []Message) (Response, error) {
	var out Response
	err := r.do(ctx, func() error {
		var err error
		out, err = r.next.Complete(ctx, systemPrompt, messages)
		return err
	})
	return out, providerErr(OpChat, err)
}

func (r *retrying) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	var out string
	err := r.do(ctx, func() error {
		var err error
		out, err = r.next.Transcribe(ctx, audio, filename)
		return err
	})
	return out, providerErr(OpTranscribe, err)
}

func (r *retrying) Describe(ctx context.Context, image []byte, mimeType, prompt string) (string, error) {
	var out string
	err := r.do(ctx, func() error {
		var err error
		out, err = r.next.Describe(ctx, image, mimeType, prompt)
		return err
	})
	return out, providerErr(OpDescribe, err)
}

func (r *retrying) Synthesize(ctx context.Context, text, voice string, speed float64) ([]byte, error) {
	var out []byte
	err := r.do(ctx, func() error {
		var err error
		out, err = r.next.Synthesize(ctx, text, voice, speed)
		return err
	})
	return out, providerErr(OpSynthesize, err)
}
