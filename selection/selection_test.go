package selection

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/unkn0wn-root/inferkit"
	"github.com/unkn0wn-root/inferkit/internal/wire"
	"github.com/unkn0wn-root/inferkit/provider/memory"
)

type corruptHooks struct {
	inferkit.NopHooks
	n atomic.Int32
}

func (h *corruptHooks) SelectionCorrupt(string) { h.n.Add(1) }

func TestPersistAcrossInstances(t *testing.T) {
	ctx := context.Background()
	p := memory.New()
	at := time.Unix(1700000000, 0)

	a := New(Options{Provider: p, now: func() time.Time { return at }})
	if _, ok := a.Selected(); ok {
		t.Fatalf("new selection should be empty")
	}
	if err := a.Set(ctx, "llama-3-8b"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	b := New(Options{Provider: p})
	if err := b.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := b.Get(); got != "llama-3-8b" {
		t.Fatalf("loaded %q", got)
	}
	if !b.SavedAt().Equal(at) {
		t.Fatalf("SavedAt = %v, want %v", b.SavedAt(), at)
	}

	if err := b.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	c := New(Options{Provider: p})
	_ = c.Load(ctx)
	if _, ok := c.Selected(); ok {
		t.Fatalf("cleared selection was restored")
	}
}

func TestLoadMissing(t *testing.T) {
	s := New(Options{})
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Get() != "" {
		t.Fatalf("expected empty selection")
	}
}

func TestLoadCorruptSelfHeals(t *testing.T) {
	ctx := context.Background()
	for name, raw := range map[string][]byte{
		"foreign": []byte("llama-3"),
		"payload": wire.EncodeSlot(time.Now(), []byte{0xc1}), // never-used msgpack byte
	} {
		t.Run(name, func(t *testing.T) {
			p := memory.New()
			_, _ = p.Set(ctx, DefaultKey, raw, 0, 0)
			hooks := &corruptHooks{}

			s := New(Options{Provider: p, Hooks: hooks})
			if err := s.Load(ctx); err != nil {
				t.Fatalf("Load: %v", err)
			}
			if s.Get() != "" {
				t.Fatalf("corrupt slot produced %q", s.Get())
			}
			if _, ok, _ := p.Get(ctx, DefaultKey); ok {
				t.Fatalf("corrupt slot not deleted")
			}
			if hooks.n.Load() != 1 {
				t.Fatalf("SelectionCorrupt calls = %d", hooks.n.Load())
			}
		})
	}
}

type failingProvider struct{ *memory.Provider }

var errDown = errors.New("store down")

func (failingProvider) Set(context.Context, string, []byte, int64, time.Duration) (bool, error) {
	return false, errDown
}

func TestSetSaveFailureKeepsSelection(t *testing.T) {
	s := New(Options{Provider: failingProvider{memory.New()}})
	if err := s.Set(context.Background(), "m"); !errors.Is(err, errDown) {
		t.Fatalf("err = %v, want errDown", err)
	}
	if s.Get() != "m" {
		t.Fatalf("in-memory selection not updated")
	}
}

func TestSubscribe(t *testing.T) {
	s := New(Options{})
	var seen []string
	unsub := s.Subscribe(func(m string) { seen = append(seen, m) })
	_ = s.Set(context.Background(), "a")
	_ = s.Set(context.Background(), "b")
	unsub()
	_ = s.Set(context.Background(), "c")
	if len(seen) != 2 || seen[0] != "a" || seen[1] != "b" {
		t.Fatalf("seen = %v", seen)
	}
}

func TestDefaultBackendSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	cfg := BackendConfig{Dir: t.TempDir()}

	p, err := OpenProvider(ctx, cfg)
	if err != nil {
		t.Fatalf("OpenProvider: %v", err)
	}
	s := New(Options{Provider: p})
	if err := s.Set(ctx, "llama"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	p, err = OpenProvider(ctx, cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	r := New(Options{Provider: p})
	defer r.Close(ctx)
	if err := r.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := r.Get(); got != "llama" {
		t.Fatalf("selection after restart = %q, want llama", got)
	}
}

func TestOpenProvider(t *testing.T) {
	ctx := context.Background()
	for _, b := range []string{BackendFile, BackendMemory, BackendRistretto, BackendBigcache} {
		p, err := OpenProvider(ctx, BackendConfig{Backend: b, Dir: t.TempDir()})
		if err != nil {
			t.Fatalf("OpenProvider(%q): %v", b, err)
		}
		s := New(Options{Provider: p})
		if err := s.Set(ctx, "phi-3"); err != nil {
			t.Fatalf("%q Set: %v", b, err)
		}
		r := New(Options{Provider: p})
		if err := r.Load(ctx); err != nil || r.Get() != "phi-3" {
			t.Fatalf("%q Load: %q %v", b, r.Get(), err)
		}
		_ = s.Close(ctx)
	}
	if _, err := OpenProvider(ctx, BackendConfig{Backend: "etcd"}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
