// Package source provides pollable, subscribable handles around the data
// providers the assistant reads from.
package source

import (
	"context"
	"sync"
	"time"
)

// Fetcher loads the current value of a source. A nil value with a nil error
// means the source has nothing to offer.
type Fetcher[T any] func(ctx context.Context) (*T, error)

// State is the latest known outcome of a source.
type State[T any] struct {
	Value     *T
	Loading   bool
	Err       error
	UpdatedAt time.Time
}

// Handle holds the latest value of one source and notifies subscribers
// whenever it changes.
type Handle[T any] struct {
	name  string
	fetch Fetcher[T]

	mu     sync.RWMutex
	state  State[T]
	nextID int
	subs   map[int]func(State[T])
}

// New creates a handle. The handle starts empty and not loading.
func New[T any](name string, fetch Fetcher[T]) *Handle[T] {
	return &Handle[T]{
		name:  name,
		fetch: fetch,
		subs:  make(map[int]func(State[T])),
	}
}

// Name returns the source name used in diagnostics.
func (h *Handle[T]) Name() string {
	return h.name
}

// Current returns the latest state.
func (h *Handle[T]) Current() State[T] {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Refresh fetches a new value. On error the value is cleared and the error
// kept; the previous value is never served alongside a failure.
// A handle created without a fetcher is push-only and republishes its value.
func (h *Handle[T]) Refresh(ctx context.Context) error {
	if h.fetch == nil {
		h.publish(h.Current())
		return nil
	}

	h.mu.Lock()
	h.state.Loading = true
	h.mu.Unlock()

	value, err := h.fetch(ctx)

	next := State[T]{Value: value, Err: err, UpdatedAt: time.Now()}
	if err != nil {
		next.Value = nil
	}
	h.publish(next)
	return err
}

// Set replaces the value directly, as a push-based provider would.
func (h *Handle[T]) Set(value *T) {
	h.publish(State[T]{Value: value, UpdatedAt: time.Now()})
}

// Subscribe registers fn to run after every change. The returned function
// removes the subscription.
func (h *Handle[T]) Subscribe(fn func(State[T])) (unsubscribe func()) {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

func (h *Handle[T]) publish(next State[T]) {
	h.mu.Lock()
	h.state = next
	subs := make([]func(State[T]), 0, len(h.subs))
	for _, fn := range h.subs {
		subs = append(subs, fn)
	}
	h.mu.Unlock()

	// Callbacks run outside the lock so they may call Current.
	for _, fn := range subs {
		fn(next)
	}
}
