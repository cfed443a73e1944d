package chat

import (
	"sync"

	"github.com/bosar/console/internal/wire"
)

// Events is the callback set a subscriber registers with a session. Any
// field may be nil. Callbacks are invoked synchronously in transport order;
// subscribers that need to do slow work should hand it off themselves.
type Events struct {
	// OnConnect fires when a connect cycle lands, with the resulting
	// credential mode.
	OnConnect func(mode Mode)
	// OnDisconnect fires when the transport drops, with the transport's
	// reason string (may be empty).
	OnDisconnect func(reason string)
	// OnMessage delivers an inbound chat message.
	OnMessage func(msg wire.Message)
	// OnStatusChange delivers a conversation status transition.
	OnStatusChange func(change wire.StatusChange)
	// OnJoined acknowledges a join-conversation request.
	OnJoined func(conversationID string)
	// OnError delivers terminal connect failures and server-sent errors.
	OnError func(message string)
}

// Subscription is a handle for removing a subscriber from a session.
type Subscription struct {
	id int
	e  *emitter
}

// Unsubscribe removes the subscriber. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.e == nil {
		return
	}
	s.e.remove(s.id)
}

// emitter fans session events out to any number of subscribers in
// registration order. It replaces the single last-writer-wins callback bag
// with deterministic add/remove semantics.
type emitter struct {
	mu     sync.Mutex
	nextID int
	subs   []subscriber
}

type subscriber struct {
	id     int
	events Events
}

func (e *emitter) subscribe(ev Events) *Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	e.subs = append(e.subs, subscriber{id: e.nextID, events: ev})
	return &Subscription{id: e.nextID, e: e}
}

func (e *emitter) remove(id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, sub := range e.subs {
		if sub.id == id {
			e.subs = append(e.subs[:i], e.subs[i+1:]...)
			return
		}
	}
}

// snapshot copies the subscriber list so callbacks run without holding the
// emitter lock. A subscriber removed mid-dispatch may still see the event
// that was already in flight.
func (e *emitter) snapshot() []subscriber {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]subscriber, len(e.subs))
	copy(out, e.subs)
	return out
}

func (e *emitter) connect(mode Mode) {
	for _, sub := range e.snapshot() {
		if sub.events.OnConnect != nil {
			sub.events.OnConnect(mode)
		}
	}
}

func (e *emitter) disconnect(reason string) {
	for _, sub := range e.snapshot() {
		if sub.events.OnDisconnect != nil {
			sub.events.OnDisconnect(reason)
		}
	}
}

func (e *emitter) message(msg wire.Message) {
	for _, sub := range e.snapshot() {
		if sub.events.OnMessage != nil {
			sub.events.OnMessage(msg)
		}
	}
}

func (e *emitter) statusChange(change wire.StatusChange) {
	for _, sub := range e.snapshot() {
		if sub.events.OnStatusChange != nil {
			sub.events.OnStatusChange(change)
		}
	}
}

func (e *emitter) joined(conversationID string) {
	for _, sub := range e.snapshot() {
		if sub.events.OnJoined != nil {
			sub.events.OnJoined(conversationID)
		}
	}
}

func (e *emitter) errorMsg(message string) {
	for _, sub := range e.snapshot() {
		if sub.events.OnError != nil {
			sub.events.OnError(message)
		}
	}
}
