// Package signal provides a small reactive value container. UI code reads the
// current value with Get and re-renders from Subscribe callbacks.
package signal

import "sync"

// Signal holds a value of type T and notifies subscribers on every change.
// Notifications are delivered synchronously, in the order the changes were
// made. Subscribers must not write to the signal that is notifying them.
type Signal[T any] struct {
	notifyMu sync.Mutex // serializes change+notify so callbacks observe order

	mu   sync.RWMutex
	v    T
	subs map[uint64]func(T)
	next uint64
}

func New[T any](v T) *Signal[T] {
	return &Signal[T]{v: v, subs: make(map[uint64]func(T))}
}

func (s *Signal[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v
}

// Set replaces the value and notifies subscribers.
func (s *Signal[T]) Set(v T) {
	s.Update(func(T) T { return v })
}

// Update applies fn to the current value atomically and notifies subscribers
// with the result, which is also returned.
func (s *Signal[T]) Update(fn func(T) T) T {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.v = fn(s.v)
	v := s.v
	subs := make([]func(T), 0, len(s.subs))
	for _, f := range s.subs {
		subs = append(subs, f)
	}
	s.mu.Unlock()

	for _, f := range subs {
		f(v)
	}
	return v
}

// Subscribe registers fn for change notifications. The returned func removes
// the subscription; calling it more than once is a no-op.
func (s *Signal[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}
