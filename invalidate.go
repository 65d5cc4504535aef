package inferkit

import (
	"context"

	"golang.org/x/sync/errgroup"
)

type target struct {
	key string
	e   liveEntry
}

// Invalidate refetches every live entry whose key is a prefix of key
// (including key itself), after bumping each one's generation. The refetches
// run concurrently and are awaited; their failures are returned as an
// *InvalidateError. Keys without a live entry are not materialized.
//
// With RefreshDescendants, live entries strictly below key are refetched in
// the background as well.
func (c *Client) Invalidate(ctx context.Context, key string) error {
	ancestors, descendants := c.collect(key)
	c.hooks.InvalidateCascade(key, len(ancestors))
	c.log.Debug("invalidate", Fields{"key": key, "matched": len(ancestors), "descendants": len(descendants)})

	errs := make([]error, len(ancestors))
	var g errgroup.Group
	if c.maxConcurrency > 0 {
		g.SetLimit(c.maxConcurrency)
	}
	for i, t := range ancestors {
		i, t := i, t
		c.bumpGen(t.key)
		g.Go(func() error {
			errs[i] = t.e.refetch(ctx)
			return nil
		})
	}
	_ = g.Wait()

	if c.descendants {
		for _, t := range descendants {
			t := t
			c.background(func() {
				c.bumpGen(t.key)
				if err := t.e.refetch(context.Background()); err != nil {
					c.log.Debug("descendant refresh failed", Fields{"key": t.key, "err": err})
				}
			})
		}
	}

	var ie *InvalidateError
	for i, err := range errs {
		if err == nil {
			continue
		}
		if ie == nil {
			ie = &InvalidateError{Key: key, Errs: make(map[string]error)}
		}
		ie.Errs[ancestors[i].key] = err
	}
	if ie != nil {
		return ie
	}
	return nil
}

// collect snapshots the live entries related to key.
func (c *Client) collect(key string) (ancestors, descendants []target) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, s := range c.slots {
		switch {
		case c.matches(k, key):
			ancestors = append(ancestors, target{key: k, e: s.e})
		case c.matches(key, k):
			descendants = append(descendants, target{key: k, e: s.e})
		}
	}
	return ancestors, descendants
}
