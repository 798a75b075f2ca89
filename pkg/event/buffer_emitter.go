package event

import (
	"context"
	"sync"
	"time"
)

// BufferingEmitter collects events in memory for later processing (e.g.,
// writing a single report file or asserting in tests). It is safe for
// concurrent use.
type BufferingEmitter struct {
	mu     sync.Mutex
	events []Event
}

// NewBufferingEmitter returns a new BufferingEmitter.
func NewBufferingEmitter() *BufferingEmitter {
	return &BufferingEmitter{events: make([]Event, 0)}
}

func (b *BufferingEmitter) Emit(_ context.Context, e Event) error {
	// ensure timestamp
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	b.mu.Lock()
	b.events = append(b.events, e)
	b.mu.Unlock()
	return nil
}

// Events returns a copy of collected events.
func (b *BufferingEmitter) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// Stages returns the stage of every collected event in emission order.
func (b *BufferingEmitter) Stages() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.Stage)
	}
	return out
}
