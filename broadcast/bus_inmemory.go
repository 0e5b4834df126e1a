package broadcast

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// InMemoryBus fans messages out to in-process subscribers. It is the
// single-process stand-in for the Redis bus, mostly useful in tests and in
// deployments where every window of the app shares one process.
type InMemoryBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Message)
	closed bool
}

// NewInMemoryBus creates an empty bus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{subs: make(map[int]func(Message))}
}

func (b *InMemoryBus) Publish(ctx context.Context, msg Message) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return errors.New("[InMemoryBus.Publish] bus is closed")
	}
	handlers := make([]func(Message), 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(msg)
	}
	return nil
}

func (b *InMemoryBus) Subscribe(handler func(Message)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errors.New("[InMemoryBus.Subscribe] bus is closed")
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = handler

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}, nil
}

func (b *InMemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.subs = make(map[int]func(Message))
	return nil
}
