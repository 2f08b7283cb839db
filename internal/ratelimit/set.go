package ratelimit

import "time"

// Quotas are per-minute limits for each operation class.
type Quotas struct {
	Chat          int
	Vision        int
	Transcription int
	Synthesis     int
}

// DefaultQuotas mirrors the provider's usual tier limits.
var DefaultQuotas = Quotas{
	Chat:          3500,
	Vision:        50,
	Transcription: 50,
	Synthesis:     50,
}

// Observer is told about every admission decision.
type Observer interface {
	ObserveAdmission(class string, admitted bool)
}

type Option func(*setOptions)

type setOptions struct {
	now      func() time.Time
	observer Observer
}

// WithClock replaces time.Now for every limiter in the set.
func WithClock(now func() time.Time) Option {
	return func(o *setOptions) { o.now = now }
}

func WithObserver(obs Observer) Option {
	return func(o *setOptions) { o.observer = obs }
}

// Set holds one independent Limiter per Class.
type Set struct {
	limiters map[Class]*Limiter
	observer Observer
}

// NewSet builds the four limiters. Zero quotas take the DefaultQuotas value.
func NewSet(q Quotas, opts ...Option) *Set {
	o := setOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	pick := func(v, def int) int {
		if v == 0 {
			return def
		}
		return v
	}
	return &Set{
		limiters: map[Class]*Limiter{
			ClassChat:          newWithClock(pick(q.Chat, DefaultQuotas.Chat), o.now),
			ClassVision:        newWithClock(pick(q.Vision, DefaultQuotas.Vision), o.now),
			ClassTranscription: newWithClock(pick(q.Transcription, DefaultQuotas.Transcription), o.now),
			ClassSynthesis:     newWithClock(pick(q.Synthesis, DefaultQuotas.Synthesis), o.now),
		},
		observer: o.observer,
	}
}

// Allow asks the class's limiter for admission. Unknown classes are rejected.
func (s *Set) Allow(c Class) bool {
	l, ok := s.limiters[c]
	admitted := ok && l.Allow()
	if s.observer != nil {
		s.observer.ObserveAdmission(string(c), admitted)
	}
	return admitted
}

func (s *Set) Remaining(c Class) int {
	l, ok := s.limiters[c]
	if !ok {
		return 0
	}
	return l.Remaining()
}
