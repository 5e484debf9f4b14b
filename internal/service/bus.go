package service

import "sync"

// Event kinds published for a map session.
const (
	EventNames   = "names"
	EventTooltip = "tooltip"
	EventCamera  = "camera"
	EventLayer   = "layer"
	EventFlight  = "flight"
	EventClosed  = "closed"
)

// Event is a change in one map session.
type Event struct {
	Session string // session ID
	Kind    string // one of the Event* kinds
	Data    any
}

// EventBus is a simple fan-out pub/sub for session events.
type EventBus struct {
	mu   sync.RWMutex
	subs map[chan Event]string
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[chan Event]string)}
}

// Publish sends an event to all subscribers of its session (non-blocking).
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch, session := range b.subs {
		if session != "" && session != e.Session {
			continue
		}
		select {
		case ch <- e:
		default:
			// subscriber too slow, skip
		}
	}
}

// Subscribe returns a buffered channel receiving the events of session,
// or of every session when session is empty.
func (b *EventBus) Subscribe(session string) chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subs[ch] = session
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *EventBus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	_, ok := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()
	if ok {
		close(ch)
	}
}
