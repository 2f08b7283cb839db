package dialogue

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Handler processes one event. Orchestrator implements it.
type Handler interface {
	Handle(ctx context.Context, ev Event) error
}

// Dispatcher runs each user's events strictly in arrival order while
// different users proceed in parallel. A worker goroutine exists only while
// its user has pending events.
type Dispatcher struct {
	ctx     context.Context
	handler Handler
	sink    Sink
	log     zerolog.Logger

	mu      sync.Mutex
	queues  map[int64][]Event
	closed  bool
	workers sync.WaitGroup
}

func NewDispatcher(ctx context.Context, h Handler, sink Sink, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		ctx:     ctx,
		handler: h,
		sink:    sink,
		log:     log.With().Str("component", "dispatcher").Logger(),
		queues:  make(map[int64][]Event),
	}
}

// Submit enqueues ev behind the user's pending events. It returns false
// once the dispatcher is closed.
func (d *Dispatcher) Submit(ev Event) bool {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	q, running := d.queues[ev.UserID]
	d.queues[ev.UserID] = append(q, ev)
	if !running {
		d.workers.Add(1)
		go d.drain(ev.UserID)
	}
	return true
}

// Close stops intake and waits for queued events to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.workers.Wait()
}

func (d *Dispatcher) drain(userID int64) {
	defer d.workers.Done()
	for {
		d.mu.Lock()
		q := d.queues[userID]
		if len(q) == 0 {
			delete(d.queues, userID)
			d.mu.Unlock()
			return
		}
		ev := q[0]
		d.queues[userID] = q[1:]
		d.mu.Unlock()

		d.run(ev)
	}
}

func (d *Dispatcher) run(ev Event) {
	log := d.log.With().Str("event_id", ev.ID).Int64("user_id", ev.UserID).Str("kind", ev.Kind.String()).Logger()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("panic", fmt.Sprint(r)).Msg("handler panicked")
			if err := d.sink.SendText(d.ctx, ev.UserID, msgGenericError); err != nil {
				log.Error().Err(err).Msg("failed to report panic to user")
			}
		}
	}()

	ctx := log.WithContext(d.ctx)
	if err := d.handler.Handle(ctx, ev); err != nil {
		log.Warn().Err(err).Msg("event failed")
		return
	}
	log.Debug().Msg("event handled")
}
