package events

import "sync"

// Subscriber receives events from the bus.
type Subscriber interface {
	Receive(ev Event)
	Closed() bool
}

// Bus is a session-keyed pub/sub fan-out with support for global
// subscribers. Delivery is synchronous: Emit returns after every live
// subscriber has been handed the event, so a caller that emits under its
// own lock gets ordered delivery for free.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]Subscriber
	global      []Subscriber
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string][]Subscriber),
	}
}

// Subscribe registers a subscriber for a session's events.
func (b *Bus) Subscribe(sessionID string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[sessionID] = append(b.subscribers[sessionID], sub)
}

// Unsubscribe removes a subscriber for a session.
func (b *Bus) Unsubscribe(sessionID string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[sessionID]
	for i, s := range subs {
		if s == sub {
			b.subscribers[sessionID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subscribers[sessionID]) == 0 {
		delete(b.subscribers, sessionID)
	}
}

// SubscribeGlobal registers a subscriber that receives every event.
func (b *Bus) SubscribeGlobal(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.global = append(b.global, sub)
}

// Emit sends an event to the session named in ev.Session and to all
// global subscribers. Closed subscribers are skipped, never removed here;
// Cleanup prunes them.
func (b *Bus) Emit(ev Event) {
	b.mu.RLock()
	subs := b.subscribers[ev.Session]
	globals := b.global
	b.mu.RUnlock()

	for _, s := range subs {
		if !s.Closed() {
			s.Receive(ev)
		}
	}
	for _, s := range globals {
		if !s.Closed() {
			s.Receive(ev)
		}
	}
}

// EmitTo sends the event to each listed session in order. Global
// subscribers see the event once, with Session left as routed last.
func (b *Bus) EmitTo(sessionIDs []string, ev Event) {
	for _, id := range sessionIDs {
		routed := ev
		routed.Session = id

		b.mu.RLock()
		subs := b.subscribers[id]
		b.mu.RUnlock()

		for _, s := range subs {
			if !s.Closed() {
				s.Receive(routed)
			}
		}
	}

	b.mu.RLock()
	globals := b.global
	b.mu.RUnlock()
	for _, s := range globals {
		if !s.Closed() {
			s.Receive(ev)
		}
	}
}

// SessionSubscribers returns the number of subscribers for a session.
func (b *Bus) SessionSubscribers(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[sessionID])
}

// Cleanup removes closed subscribers from all lists.
func (b *Bus) Cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, subs := range b.subscribers {
		var active []Subscriber
		for _, s := range subs {
			if !s.Closed() {
				active = append(active, s)
			}
		}
		if len(active) == 0 {
			delete(b.subscribers, id)
		} else {
			b.subscribers[id] = active
		}
	}

	var activeGlobal []Subscriber
	for _, s := range b.global {
		if !s.Closed() {
			activeGlobal = append(activeGlobal, s)
		}
	}
	b.global = activeGlobal
}
