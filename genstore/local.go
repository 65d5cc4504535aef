package genstore

import (
	"context"
	"sync"
	"time"
)

type localGenEntry struct {
	Gen       uint64
	UpdatedAt time.Time
}

// LocalGenStore keeps generations in-process.
// An optional cleanup loop prunes long-inactive entries. Pruning a key resets
// it to 0, so keys that may have a fetch in flight must be pinned with Retain.
type LocalGenStore struct {
	mu     sync.RWMutex
	gens   map[string]localGenEntry
	retain func(key string) bool
	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

var _ GenStore = (*LocalGenStore)(nil)

func NewLocalGenStore(cleanupInterval, retention time.Duration) *LocalGenStore {
	s := &LocalGenStore{gens: make(map[string]localGenEntry)}
	if cleanupInterval > 0 && retention > 0 {
		s.ticker = time.NewTicker(cleanupInterval)
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.C:
					s.Cleanup(retention)
				case <-s.stopCh:
					return
				}
			}
		}()
	}
	return s
}

func (s *LocalGenStore) Snapshot(_ context.Context, k string) (uint64, error) {
	s.mu.RLock()
	e := s.gens[k]
	s.mu.RUnlock()
	return e.Gen, nil
}

func (s *LocalGenStore) Bump(_ context.Context, k string) (uint64, error) {
	now := time.Now()
	s.mu.Lock()
	e := s.gens[k]
	e.Gen++
	e.UpdatedAt = now
	s.gens[k] = e
	s.mu.Unlock()
	return e.Gen, nil
}

// Retain installs a predicate reporting keys Cleanup must keep regardless of
// age. fn is called without the store's lock held.
func (s *LocalGenStore) Retain(fn func(key string) bool) {
	s.mu.Lock()
	s.retain = fn
	s.mu.Unlock()
}

func (s *LocalGenStore) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-retention)

	s.mu.RLock()
	keep := s.retain
	var old []string
	for k, e := range s.gens {
		if e.UpdatedAt.Before(cutoff) {
			old = append(old, k)
		}
	}
	s.mu.RUnlock()
	if len(old) == 0 {
		return
	}
	if keep != nil {
		n := 0
		for _, k := range old {
			if !keep(k) {
				old[n] = k
				n++
			}
		}
		old = old[:n]
	}

	s.mu.Lock()
	for _, k := range old {
		// a Bump since the scan makes the key fresh again
		if e, ok := s.gens[k]; ok && e.UpdatedAt.Before(cutoff) {
			delete(s.gens, k)
		}
	}
	s.mu.Unlock()
}

func (s *LocalGenStore) Close(_ context.Context) error {
	s.once.Do(func() {
		if s.stopCh != nil {
			close(s.stopCh)
			s.ticker.Stop()
			s.wg.Wait()
		}
	})
	return nil
}
