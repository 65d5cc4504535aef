// Package selection holds the model the user picked for generation and
// persists it in a single provider slot. Load restores it at startup; Set
// saves on every change.
package selection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/unkn0wn-root/inferkit"
	"github.com/unkn0wn-root/inferkit/codec"
	"github.com/unkn0wn-root/inferkit/internal/wire"
	"github.com/unkn0wn-root/inferkit/provider"
	"github.com/unkn0wn-root/inferkit/provider/memory"
	"github.com/unkn0wn-root/inferkit/signal"
)

const DefaultKey = "inferkit:selected-model"

// record is the slot payload.
type record struct {
	Model string `msgpack:"model"`
}

type Options struct {
	Provider provider.Provider // nil => in-process memory provider
	Key      string            // slot key; "" => DefaultKey
	TTL      time.Duration     // 0 => no expiry

	Logger inferkit.Logger
	Hooks  inferkit.Hooks

	now func() time.Time
}

// Selection is safe for concurrent use.
type Selection struct {
	p     provider.Provider
	key   string
	ttl   time.Duration
	log   inferkit.Logger
	hooks inferkit.Hooks
	now   func() time.Time
	codec codec.Msgpack[record]

	model *signal.Signal[string]

	mu      sync.Mutex // orders saves
	savedAt time.Time
}

func New(opts Options) *Selection {
	s := &Selection{
		p:     opts.Provider,
		key:   opts.Key,
		ttl:   opts.TTL,
		log:   opts.Logger,
		hooks: opts.Hooks,
		now:   opts.now,
		model: signal.New(""),
	}
	if s.p == nil {
		s.p = memory.New()
	}
	if s.key == "" {
		s.key = DefaultKey
	}
	if s.log == nil {
		s.log = inferkit.NopLogger{}
	}
	if s.hooks == nil {
		s.hooks = inferkit.NopHooks{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Load restores the persisted selection. A missing slot leaves the selection
// empty. A slot that fails validation is deleted and treated as missing.
func (s *Selection) Load(ctx context.Context) error {
	b, ok, err := s.p.Get(ctx, s.key)
	if err != nil {
		return fmt.Errorf("selection: load %q: %w", s.key, err)
	}
	if !ok {
		return nil
	}

	at, payload, err := wire.DecodeSlot(b)
	var rec record
	if err == nil {
		rec, err = s.codec.Decode(payload)
	}
	if err != nil {
		s.log.Warn("selection slot corrupt; deleting", logFields(s.key, err))
		s.hooks.SelectionCorrupt(s.key)
		if derr := s.p.Del(ctx, s.key); derr != nil {
			s.log.Error("selection slot delete failed", logFields(s.key, derr))
		}
		return nil
	}

	s.mu.Lock()
	s.savedAt = at
	s.mu.Unlock()
	s.model.Set(rec.Model)
	s.log.Debug("selection loaded", inferkit.Fields{"key": s.key, "model": rec.Model})
	return nil
}

// Get returns the selected model, or "" when none is selected.
func (s *Selection) Get() string { return s.model.Get() }

// Selected reports the selected model and whether one is set.
func (s *Selection) Selected() (string, bool) {
	m := s.model.Get()
	return m, m != ""
}

// Set selects model and saves it. An empty model clears the slot. The
// in-memory selection changes even when saving fails.
func (s *Selection) Set(ctx context.Context, model string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.model.Set(model)

	if model == "" {
		if err := s.p.Del(ctx, s.key); err != nil {
			return fmt.Errorf("selection: clear %q: %w", s.key, err)
		}
		s.savedAt = time.Time{}
		return nil
	}

	payload, err := s.codec.Encode(record{Model: model})
	if err != nil {
		return fmt.Errorf("selection: encode: %w", err)
	}
	at := s.now()
	ok, err := s.p.Set(ctx, s.key, wire.EncodeSlot(at, payload), int64(len(payload)), s.ttl)
	if err != nil {
		return fmt.Errorf("selection: save %q: %w", s.key, err)
	}
	if !ok {
		return ErrRejected
	}
	s.savedAt = at
	return nil
}

// Clear is Set(ctx, "").
func (s *Selection) Clear(ctx context.Context) error { return s.Set(ctx, "") }

// SavedAt returns when the current selection was last persisted (zero if
// never).
func (s *Selection) SavedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.savedAt
}

// Subscribe calls fn with the model on every change.
func (s *Selection) Subscribe(fn func(model string)) (unsubscribe func()) {
	return s.model.Subscribe(fn)
}

// Close releases the provider.
func (s *Selection) Close(ctx context.Context) error { return s.p.Close(ctx) }

// ErrRejected is returned by Set when the provider refused the write.
var ErrRejected = errors.New("selection: write rejected by provider")

func logFields(key string, err error) inferkit.Fields {
	return inferkit.Fields{"key": key, "err": err}
}
