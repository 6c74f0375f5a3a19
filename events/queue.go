// Package events provides a channel-backed event queue for invoice change notifications
package events

import (
	"context"
	"errors"
	"sync"

	"github.com/blc-org/una/lnclient"
)

const InvoiceUpdatedEventType = "invoice-updated"

// ErrQueueClosed is returned by NextEvent once the queue has been closed,
// so consumers can tell queue shutdown apart from their own cancellation.
var ErrQueueClosed = errors.New("event queue is closed")

// Event is the base interface for all events
type Event interface {
	EventType() string
}

// InvoiceUpdatedEvent carries the refreshed invoice snapshot after a status transition
type InvoiceUpdatedEvent struct {
	Invoice lnclient.Invoice
}

func (e *InvoiceUpdatedEvent) EventType() string {
	return InvoiceUpdatedEventType
}

// EventQueue manages a queue of events. Each watcher owns its own queue so
// independent watcher instances never share listener state.
type EventQueue struct {
	events chan Event
	mu     sync.RWMutex
	closed bool
}

// NewEventQueue creates a new event queue
func NewEventQueue(bufferSize int) *EventQueue {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &EventQueue{
		events: make(chan Event, bufferSize),
	}
}

// Enqueue adds an event to the queue
func (eq *EventQueue) Enqueue(event Event) {
	eq.mu.RLock()
	defer eq.mu.RUnlock()

	if eq.closed {
		return
	}

	select {
	case eq.events <- event:
	default:
		// Queue is full, drop the event
	}
}

// NextEvent blocks until the next event is available or context is cancelled
func (eq *EventQueue) NextEvent(ctx context.Context) (Event, error) {
	select {
	case event, ok := <-eq.events:
		if !ok {
			return nil, ErrQueueClosed
		}
		return event, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetAndClearPendingEvents returns all pending events without blocking
func (eq *EventQueue) GetAndClearPendingEvents() []Event {
	events := []Event{}
	for {
		select {
		case event, ok := <-eq.events:
			if !ok {
				return events
			}
			events = append(events, event)
		default:
			return events
		}
	}
}

// Close closes the event queue
func (eq *EventQueue) Close() {
	eq.mu.Lock()
	defer eq.mu.Unlock()

	if !eq.closed {
		eq.closed = true
		close(eq.events)
	}
}
