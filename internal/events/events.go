package events

import (
	"context"
	"sync"

	"floorpos/backend/internal/domain"
)

type Handler func(domain.Event)

// Channel is the station push channel. State-relay events (lock table, active
// shift) carry full snapshots, so a subscriber needs only the latest event of
// each type to converge.
type Channel interface {
	Publish(ctx context.Context, event domain.Event) error
	Subscribe(handler Handler) (cancel func())
	Close() error
}

// Loopback is the in-process channel used in single-station mode and tests.
// It retains the last event per type and replays the retained events to new
// subscribers, so a late subscriber still observes the current state.
// Dispatch is synchronous, preserving publish order within the process.
type Loopback struct {
	mu       sync.Mutex
	nextID   int
	handlers map[int]Handler
	retained map[domain.EventType]domain.Event
}

func NewLoopback() *Loopback {
	return &Loopback{
		handlers: make(map[int]Handler),
		retained: make(map[domain.EventType]domain.Event),
	}
}

func (l *Loopback) Publish(_ context.Context, event domain.Event) error {
	l.mu.Lock()
	l.retained[event.Type] = event
	handlers := make([]Handler, 0, len(l.handlers))
	for _, h := range l.handlers {
		handlers = append(handlers, h)
	}
	l.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
	return nil
}

func (l *Loopback) Subscribe(handler Handler) func() {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.handlers[id] = handler
	replay := make([]domain.Event, 0, len(l.retained))
	for _, e := range l.retained {
		replay = append(replay, e)
	}
	l.mu.Unlock()

	for _, e := range replay {
		handler(e)
	}

	return func() {
		l.mu.Lock()
		delete(l.handlers, id)
		l.mu.Unlock()
	}
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	l.handlers = make(map[int]Handler)
	l.mu.Unlock()
	return nil
}
