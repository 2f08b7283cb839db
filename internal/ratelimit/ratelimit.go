// Package ratelimit gates calls to the model provider with per-operation
// sliding one-minute windows.
//
// A Limiter is a fail-fast gate, not a scheduler: a rejected call records
// nothing and never waits. The caller tells the user and gives up.
package ratelimit

import (
	"sync"
	"time"
)

// Window is the sliding window every Limiter counts over.
const Window = time.Minute

// Class names an external operation with its own quota.
type Class string

const (
	ClassChat          Class = "chat"
	ClassVision        Class = "vision"
	ClassTranscription Class = "transcription"
	ClassSynthesis     Class = "synthesis"
)

// Limiter admits at most quota calls within any trailing Window.
// It is safe for concurrent use.
type Limiter struct {
	mu     sync.Mutex
	quota  int
	stamps []time.Time // oldest first
	now    func() time.Time
}

// New returns a Limiter with the given per-minute quota. A quota below one
// rejects every call.
func New(quota int) *Limiter {
	return newWithClock(quota, time.Now)
}

func newWithClock(quota int, now func() time.Time) *Limiter {
	if quota < 0 {
		quota = 0
	}
	return &Limiter{quota: quota, now: now, stamps: make([]time.Time, 0, min(quota, 64))}
}

// Allow evicts stale timestamps and, if the window still has room, records
// the current call and returns true.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evict(now)
	if len(l.stamps) >= l.quota {
		return false
	}
	l.stamps = append(l.stamps, now)
	return true
}

// Remaining reports how many calls the current window still admits.
func (l *Limiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evict(l.now())
	return l.quota - len(l.stamps)
}

func (l *Limiter) evict(now time.Time) {
	cutoff := now.Add(-Window)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}
