package inferkit

import (
	"context"
	"sync"
)

// Handle is one consumer's reference to a cached resource. Handles for the
// same key share one entry. Release the handle when the consumer goes away.
type Handle[V any] struct {
	c    *Client
	s    *slot
	e    *entry[V]
	once sync.Once
}

func (h *Handle[V]) Key() string { return h.e.key }

// State returns the current reactive state.
func (h *Handle[V]) State() State[V] { return h.e.state.Get() }

// Data returns the last fetched value and whether one exists.
func (h *Handle[V]) Data() (V, bool) {
	s := h.e.state.Get()
	return s.Data, s.HasData
}

func (h *Handle[V]) Loading() bool { return h.e.state.Get().Loading }

// Subscribe calls fn on every state change until the returned func is called.
func (h *Handle[V]) Subscribe(fn func(State[V])) (unsubscribe func()) {
	return h.e.state.Subscribe(fn)
}

// Refetch GETs the resource. Calls made while a fetch of the same generation
// is in flight wait for that fetch instead of issuing another request. On
// failure the previous data is kept and the error is returned.
func (h *Handle[V]) Refetch(ctx context.Context) error {
	return h.e.refetch(ctx)
}

// Post sends payload as JSON to the resource key, then invalidates the key,
// even if the request failed.
func (h *Handle[V]) Post(ctx context.Context, payload any) (Result, error) {
	return h.e.post(ctx, payload)
}

// Put is Post with PUT.
func (h *Handle[V]) Put(ctx context.Context, payload any) (Result, error) {
	return h.e.put(ctx, payload)
}

// Delete removes key/id and invalidates key; with an empty id it removes the
// key itself and invalidates its parent.
func (h *Handle[V]) Delete(ctx context.Context, id string) error {
	return h.e.delete(ctx, id)
}

// Release drops this handle's reference. Safe to call more than once.
func (h *Handle[V]) Release() {
	h.once.Do(func() { h.c.release(h.s) })
}
