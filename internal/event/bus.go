// Package event is the in-process bus that carries side effects (moderation
// pings, contribution notices, biography regeneration) off the request path.
package event

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Type identifies a category of event.
type Type string

// Known event types.
const (
	// ContributionPending fires when a non-privileged submission is queued.
	ContributionPending Type = "ugc.pending"
	// ContributionAccepted fires after a contribution is merged into an artist.
	ContributionAccepted Type = "ugc.accepted"
	// ArtistDataAdded carries the human-readable "X added Y's Z" notice.
	ArtistDataAdded Type = "artist.data_added"
	// ArtistDataRemoved fires after a privileged removal.
	ArtistDataRemoved Type = "artist.data_removed"
	// ArtistAdded fires when a new artist record is created.
	ArtistAdded Type = "artist.added"
	// BioInvalidated fires when a biography-relevant field changed.
	BioInvalidated Type = "bio.invalidated"
)

// Types lists every event type, for webhook subscription validation.
var Types = []Type{
	ContributionPending,
	ContributionAccepted,
	ArtistDataAdded,
	ArtistDataRemoved,
	ArtistAdded,
	BioInvalidated,
}

// Event represents something that happened in the system.
type Event struct {
	Type      Type           `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	ArtistID  string         `json:"artist_id,omitempty"`
	Message   string         `json:"message,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Handler processes one event. Handlers run on the bus goroutine and must
// not block for long; slow work should be handed to its own goroutine.
type Handler func(Event)

// Bus fans events out to subscribers from a buffered queue.
type Bus struct {
	queue  chan Event
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[Type][]Handler
	all      []Handler

	closeOnce sync.Once
	closed    chan struct{}
	finished  chan struct{}
}

// NewBus creates a bus that buffers up to size events.
func NewBus(logger *slog.Logger, size int) *Bus {
	if size <= 0 {
		size = 256
	}
	return &Bus{
		queue:    make(chan Event, size),
		logger:   logger.With(slog.String("component", "event-bus")),
		handlers: make(map[Type][]Handler),
		closed:   make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// Subscribe registers h for events of type t.
func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

// SubscribeAll registers h for every event type.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Publish enqueues e without blocking. It reports false when the event was
// dropped because the queue is full or the bus is closed.
func (b *Bus) Publish(e Event) bool {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	select {
	case <-b.closed:
		b.logger.Warn("event bus closed, dropping event", "type", string(e.Type))
		return false
	default:
	}
	select {
	case b.queue <- e:
		return true
	default:
		b.logger.Warn("event bus full, dropping event", "type", string(e.Type))
		return false
	}
}

// Run dispatches queued events until ctx is cancelled or Close is called,
// then drains whatever is still buffered.
func (b *Bus) Run(ctx context.Context) {
	defer close(b.finished)
	for {
		select {
		case e := <-b.queue:
			b.dispatch(e)
		case <-ctx.Done():
			b.drain()
			return
		case <-b.closed:
			b.drain()
			return
		}
	}
}

// Close stops accepting events and waits for Run to drain the queue. It is
// safe to call more than once; it returns immediately if Run never started.
func (b *Bus) Close(wait time.Duration) {
	b.closeOnce.Do(func() { close(b.closed) })
	select {
	case <-b.finished:
	case <-time.After(wait):
	}
}

func (b *Bus) drain() {
	for {
		select {
		case e := <-b.queue:
			b.dispatch(e)
		default:
			return
		}
	}
}

func (b *Bus) dispatch(e Event) {
	b.mu.RLock()
	hs := make([]Handler, 0, len(b.handlers[e.Type])+len(b.all))
	hs = append(hs, b.handlers[e.Type]...)
	hs = append(hs, b.all...)
	b.mu.RUnlock()

	for _, h := range hs {
		b.call(h, e)
	}
}

func (b *Bus) call(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "type", string(e.Type), "panic", r)
		}
	}()
	h(e)
}
