// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    CoalescedEvery: 10, // sample: ~every 10th coalesced refetch
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	client, _ := inferkit.New(inferkit.Options{
//	    Transport: tr,
//	    Hooks:     hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/inferkit"
)

// Hooks forwards events to inner on worker goroutines. Events that do not fit
// in the queue are dropped and counted.
type Hooks struct {
	inner   inferkit.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ inferkit.Hooks = (*Hooks)(nil)

func New(inner inferkit.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events sent afterwards
// are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped returns how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) RefetchCoalesced(k string) { h.try(func() { h.inner.RefetchCoalesced(k) }) }
func (h *Hooks) StaleFetchDropped(k string, obs, cur uint64) {
	h.try(func() { h.inner.StaleFetchDropped(k, obs, cur) })
}
func (h *Hooks) FetchFailed(k string, err error)      { h.try(func() { h.inner.FetchFailed(k, err) }) }
func (h *Hooks) InvalidateCascade(k string, n int)    { h.try(func() { h.inner.InvalidateCascade(k, n) }) }
func (h *Hooks) WriteFailed(k, m string, err error)   { h.try(func() { h.inner.WriteFailed(k, m, err) }) }
func (h *Hooks) EntryDropped(k string)                { h.try(func() { h.inner.EntryDropped(k) }) }
func (h *Hooks) GenerationSuperseded(id string)       { h.try(func() { h.inner.GenerationSuperseded(id) }) }
func (h *Hooks) StreamTailDropped(id string, n int)   { h.try(func() { h.inner.StreamTailDropped(id, n) }) }
func (h *Hooks) SelectionCorrupt(slot string)         { h.try(func() { h.inner.SelectionCorrupt(slot) }) }
func (h *Hooks) GenerationFinished(id, outcome string, chars int) {
	h.try(func() { h.inner.GenerationFinished(id, outcome, chars) })
}
