package inferkit

import (
	"context"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"sync"

	"github.com/unkn0wn-root/inferkit/codec"
	"github.com/unkn0wn-root/inferkit/internal/util"
	"github.com/unkn0wn-root/inferkit/signal"
	"github.com/unkn0wn-root/inferkit/transport"
)

// entry is the cache record for one key. Its state is only written by its own
// methods.
type entry[V any] struct {
	c     *Client
	id    uint64
	key   string
	state *signal.Signal[State[V]]

	applyMu sync.Mutex // generation check + state write are one step
}

func newEntry[V any](c *Client, key string) *entry[V] {
	return &entry[V]{
		c:     c,
		id:    c.nextID.Add(1),
		key:   key,
		state: signal.New(State[V]{Loading: true}),
	}
}

func (e *entry[V]) typeName() string { return typeName[V]() }

func typeName[V any]() string {
	return reflect.TypeOf((*V)(nil)).Elem().String()
}

// flightKey identifies a fetch of this entry under generation g. A new
// generation starts a new flight, so a refetch issued after an invalidation
// never joins a fetch that began before it.
func (e *entry[V]) flightKey(g uint64) string {
	return strconv.FormatUint(e.id, 10) + ":" + strconv.FormatUint(g, 10) + ":" + e.key
}

func (e *entry[V]) refetch(ctx context.Context) error {
	g := e.c.snapshotGen(e.key)
	e.state.Update(func(s State[V]) State[V] {
		s.Loading = true
		return s
	})

	// The flight applies its own result, so it lands even if every waiter
	// gives up; it therefore must not inherit any waiter's cancellation.
	fctx := context.WithoutCancel(ctx)
	ch := e.c.flights.DoChan(e.flightKey(g), func() (any, error) {
		return nil, e.load(fctx, g)
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Shared {
			e.c.hooks.RefetchCoalesced(e.key)
		}
		return res.Err
	}
}

func (e *entry[V]) load(ctx context.Context, g uint64) error {
	e.c.log.Debug("fetch start", Fields{"key": e.key, "gen": g})
	resp, err := e.c.fetch(ctx, e.key)
	if err != nil {
		e.fail(g, err)
		return err
	}
	v, err := e.decode(resp)
	if err != nil {
		e.fail(g, err)
		return err
	}

	e.applyMu.Lock()
	defer e.applyMu.Unlock()
	if cur := e.c.snapshotGen(e.key); cur != g {
		e.c.log.Debug("fetch result dropped (gen moved)", Fields{"key": e.key, "obs": g, "cur": cur})
		e.c.hooks.StaleFetchDropped(e.key, g, cur)
		return nil
	}
	e.state.Set(State[V]{Data: v, HasData: true})
	return nil
}

// fail records err unless a newer generation owns the entry's state. Data is
// kept so consumers show the last known value.
func (e *entry[V]) fail(g uint64, err error) {
	e.c.log.Warn("fetch failed", Fields{"key": e.key, "err": err})
	e.c.hooks.FetchFailed(e.key, err)

	e.applyMu.Lock()
	defer e.applyMu.Unlock()
	if e.c.snapshotGen(e.key) != g {
		return
	}
	e.state.Update(func(s State[V]) State[V] {
		s.Loading = false
		s.Err = err
		return s
	})
}

func (e *entry[V]) decode(resp *transport.Response) (V, error) {
	var zero V
	cd, err := codec.For[V](resp.ContentType)
	if err != nil {
		return zero, fmt.Errorf("inferkit: decode %q: %w", e.key, err)
	}
	if e.c.maxDecode > 0 {
		cd = codec.LimitCodec[V]{Inner: cd, MaxDecode: e.c.maxDecode}
	}
	v, err := cd.Decode(resp.Body)
	if err != nil {
		return zero, fmt.Errorf("inferkit: decode %q: %w", e.key, err)
	}
	return v, nil
}

// write sends one mutating request and then, whatever its outcome,
// invalidates invKey. Invalidation is awaited and not cancellable by ctx.
func (e *entry[V]) write(ctx context.Context, method, path string, payload any, invKey string) (Result, error) {
	resp, err := e.c.tr.Do(ctx, &transport.Request{Method: method, Path: path, Body: payload})

	if ierr := e.c.Invalidate(context.WithoutCancel(ctx), invKey); ierr != nil {
		e.c.log.Warn("invalidation after write failed", Fields{"key": invKey, "method": method, "err": ierr})
	}

	if err != nil {
		e.c.log.Warn("write failed", Fields{"key": path, "method": method, "err": err})
		e.c.hooks.WriteFailed(path, method, err)
		return Result{}, err
	}
	return Result{ContentType: resp.ContentType, Body: resp.Body}, nil
}

func (e *entry[V]) post(ctx context.Context, payload any) (Result, error) {
	return e.write(ctx, http.MethodPost, e.key, payload, e.key)
}

func (e *entry[V]) put(ctx context.Context, payload any) (Result, error) {
	return e.write(ctx, http.MethodPut, e.key, payload, e.key)
}

func (e *entry[V]) delete(ctx context.Context, id string) error {
	if id != "" {
		_, err := e.write(ctx, http.MethodDelete, util.Join(e.key, id), nil, e.key)
		return err
	}
	_, err := e.write(ctx, http.MethodDelete, e.key, nil, util.Parent(e.key))
	return err
}
