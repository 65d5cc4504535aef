package inferkit

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/inferkit/genstore"
	"github.com/unkn0wn-root/inferkit/internal/util"
	"github.com/unkn0wn-root/inferkit/transport"
)

const (
	defaultGenRetention = 24 * time.Hour
	defaultSweep        = time.Hour
)

// liveEntry is the type-erased view of entry[V] used by the cascade.
type liveEntry interface {
	refetch(ctx context.Context) error
	typeName() string
}

// slot is the index record for one live key. refs counts outstanding handles.
type slot struct {
	key  string
	refs int
	e    liveEntry
}

// Client indexes live cache entries by key and runs the invalidation
// cascade. Safe for concurrent use.
type Client struct {
	tr    transport.Doer
	log   Logger
	hooks Hooks

	gen     genstore.GenStore
	ownsGen bool

	prefix         PrefixMode
	descendants    bool
	maxConcurrency int
	maxDecode      int

	flights singleflight.Group
	nextID  atomic.Uint64

	mu     sync.Mutex
	slots  map[string]*slot
	closed bool

	bgWg sync.WaitGroup // background refetches (Use, descendant refresh)

	closeOnce sync.Once
}

func newClient(opts Options) (*Client, error) {
	if opts.Transport == nil {
		return nil, fmt.Errorf("inferkit: transport is required")
	}

	c := &Client{
		tr:             opts.Transport,
		prefix:         opts.PrefixMode,
		descendants:    opts.RefreshDescendants,
		maxConcurrency: opts.MaxConcurrency,
		maxDecode:      opts.MaxDecodeBytes,
		slots:          make(map[string]*slot),
	}
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})

	if opts.GenStore != nil {
		c.gen = opts.GenStore
	} else {
		gs := genstore.NewLocalGenStore(
			coalesce(opts.GenCleanupInterval, defaultSweep),
			coalesce(opts.GenRetention, defaultGenRetention),
		)
		// a live entry may have a fetch in flight; resetting its
		// generation would make that fetch drop its own result
		gs.Retain(c.live)
		c.gen = gs
		c.ownsGen = true
	}
	return c, nil
}

// Close waits for background refetches and releases the generation store
// when the client created it. Acquire fails afterwards; existing handles keep
// working against the transport.
func (c *Client) Close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.bgWg.Wait()
		if c.ownsGen {
			err = c.gen.Close(ctx)
		}
	})
	return err
}

// Len returns the number of live entries.
func (c *Client) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.slots)
}

// Acquire returns a handle to the live entry for key, creating the entry
// (Loading=true, no data) if no handle references it. It performs no I/O.
// The caller must Release the handle when done with it.
func Acquire[V any](c *Client, key string) (*Handle[V], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	if s, ok := c.slots[key]; ok {
		e, ok := s.e.(*entry[V])
		if !ok {
			return nil, fmt.Errorf("%w: %q holds %s, requested %s", ErrTypeMismatch, key, s.e.typeName(), typeName[V]())
		}
		s.refs++
		return &Handle[V]{c: c, s: s, e: e}, nil
	}

	e := newEntry[V](c, key)
	s := &slot{key: key, refs: 1, e: e}
	c.slots[key] = s
	c.log.Debug("entry created", Fields{"key": key})
	return &Handle[V]{c: c, s: s, e: e}, nil
}

// Use acquires key and starts a background Refetch, the way a UI component
// reads a resource on mount. Fetch errors land in the handle's State.
func Use[V any](c *Client, key string) (*Handle[V], error) {
	h, err := Acquire[V](c, key)
	if err != nil {
		return nil, err
	}
	c.background(func() {
		if err := h.e.refetch(context.Background()); err != nil {
			c.log.Debug("initial fetch failed", Fields{"key": key, "err": err})
		}
	})
	return h, nil
}

// live reports whether key has an entry referenced by a handle.
func (c *Client) live(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.slots[key]
	return ok
}

func (c *Client) release(s *slot) {
	c.mu.Lock()
	s.refs--
	dropped := s.refs == 0 && c.slots[s.key] == s
	if dropped {
		delete(c.slots, s.key)
	}
	c.mu.Unlock()

	if dropped {
		c.log.Debug("entry dropped", Fields{"key": s.key})
		c.hooks.EntryDropped(s.key)
	}
}

// background runs fn on its own goroutine; Close waits for it. After Close
// fn is not run.
func (c *Client) background(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.bgWg.Add(1)
	go func() {
		defer c.bgWg.Done()
		fn()
	}()
}

func (c *Client) fetch(ctx context.Context, key string) (*transport.Response, error) {
	return c.tr.Do(ctx, &transport.Request{Method: http.MethodGet, Path: key})
}

func (c *Client) snapshotGen(key string) uint64 {
	g, err := c.gen.Snapshot(context.Background(), key)
	if err != nil {
		c.log.Warn("gen snapshot error", Fields{"key": key, "err": err})
		return 0
	}
	return g
}

func (c *Client) bumpGen(key string) uint64 {
	g, err := c.gen.Bump(context.Background(), key)
	if err != nil {
		c.log.Error("gen bump error", Fields{"key": key, "err": err})
		return 0
	}
	return g
}

func (c *Client) matches(ancestor, key string) bool {
	if c.prefix == PrefixSegment {
		return util.IsSegmentPrefix(ancestor, key)
	}
	return util.IsPrefix(ancestor, key)
}
