package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Handler handles an event. A returned error is reported to the publisher.
type Handler func(ctx context.Context, e Event) error

type subscription struct {
	id      string
	kind    string
	handler Handler
}

// Bus is a synchronous pub-sub bus. Publish returns only after every
// matching handler ran, and reports their failures together.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[string][]subscription // kind -> subscriptions
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subscriptions: make(map[string][]subscription)}
}

// Subscribe registers a handler for one event kind and returns its id.
func (b *Bus) Subscribe(kind string, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	b.subscriptions[kind] = append(b.subscriptions[kind], subscription{id: id, kind: kind, handler: handler})
	return id
}

// SubscribeAll registers a handler for every event kind.
func (b *Bus) SubscribeAll(handler Handler) string {
	return b.Subscribe("*", handler)
}

// Unsubscribe removes a subscription by id. It reports whether it existed.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for kind, subs := range b.subscriptions {
		for i, sub := range subs {
			if sub.id == id {
				b.subscriptions[kind] = append(subs[:i:i], subs[i+1:]...)
				return true
			}
		}
	}
	return false
}

// Publish dispatches e to the handlers of its kind, then to wildcard
// handlers, each group in registration order. Every handler runs even if
// an earlier one fails or panics; failures are joined into the result.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	b.mu.RLock()
	subs := make([]subscription, 0, len(b.subscriptions[e.Kind])+len(b.subscriptions["*"]))
	subs = append(subs, b.subscriptions[e.Kind]...)
	subs = append(subs, b.subscriptions["*"]...)
	b.mu.RUnlock()

	var errs []error
	for _, sub := range subs {
		if err := safeCall(ctx, sub.handler, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func safeCall(ctx context.Context, handler Handler, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked on %s: %v", e.Kind, r)
		}
	}()
	return handler(ctx, e)
}

// SubscriptionCount returns the number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, subs := range b.subscriptions {
		n += len(subs)
	}
	return n
}
