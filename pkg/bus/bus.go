// Package bus implements the process-wide publish/subscribe bus used to
// announce pipeline completion and history mutations. The bus is purely
// observational: publishers never block on a slow or absent consumer.
package bus

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrBusClosed is returned when publishing to a closed EventBus.
var ErrBusClosed = errors.New("event bus closed")

type EventBus struct {
	events chan Event
	done   chan struct{}
	closed atomic.Bool

	dropped atomic.Uint64
}

func NewEventBus() *EventBus {
	return &EventBus{
		events: make(chan Event, 100),
		done:   make(chan struct{}),
	}
}

// Publish enqueues an event without blocking. When the buffer is full the
// event is dropped and counted; correctness never depends on delivery.
func (b *EventBus) Publish(event Event) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	select {
	case b.events <- event:
		return nil
	case <-b.done:
		return ErrBusClosed
	default:
		b.dropped.Add(1)
		return nil
	}
}

// Consume blocks until an event is available, the bus closes, or ctx is done.
func (b *EventBus) Consume(ctx context.Context) (Event, bool) {
	select {
	case event, ok := <-b.events:
		return event, ok
	case <-b.done:
		return Event{}, false
	case <-ctx.Done():
		return Event{}, false
	}
}

// Dropped reports how many events were discarded due to a full buffer.
func (b *EventBus) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *EventBus) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.done)
	}
}
