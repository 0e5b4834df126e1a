// Package events carries the single typed notification stream the SSO client
// exposes. Managers publish passive notifications; only the client core and
// its consumers subscribe, keeping the dependency one-directional.
package events

import (
	"sync"
	"time"
)

// Type identifies a lifecycle notification.
type Type string

const (
	TokenStored    Type = "token.stored"
	TokenExpired   Type = "token.expired"
	TokenRefreshed Type = "token.refreshed"
	TokenCleared   Type = "token.cleared"
	TokenRevoked   Type = "token.revoked"

	SessionCreated   Type = "session.created"
	SessionExtended  Type = "session.extended"
	SessionExpired   Type = "session.expired"
	SessionInactive  Type = "session.inactive"
	SessionDestroyed Type = "session.destroyed"

	LogoutBroadcast Type = "logout.broadcast"
)

// Event is one lifecycle notification.
type Event struct {
	Type       Type
	ProviderID string
	SessionID  string
	At         time.Time
	Err        error
}

// Stream is a callback registry. Publish is non-blocking from the publisher's
// perspective only in the sense that handlers run inline and must be cheap;
// long work belongs in the subscriber's own goroutine.
type Stream struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Event)
}

// NewStream creates an empty stream.
func NewStream() *Stream {
	return &Stream{subs: make(map[int]func(Event))}
}

// Subscribe registers a handler and returns its cancel function.
func (s *Stream) Subscribe(handler func(Event)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = handler
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Publish delivers an event to every subscriber. Safe on a nil Stream so
// components can publish unconditionally.
func (s *Stream) Publish(e Event) {
	if s == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}

	s.mu.RLock()
	handlers := make([]func(Event), 0, len(s.subs))
	for _, h := range s.subs {
		handlers = append(handlers, h)
	}
	s.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}
