// Package memory is a map-backed Provider. Values live for the process
// lifetime unless a TTL is given.
package memory

import (
	"context"
	"sync"
	"time"

	pr "github.com/unkn0wn-root/inferkit/provider"
)

type item struct {
	v   []byte
	exp time.Time // zero => no TTL
}

type Provider struct {
	mu  sync.Mutex
	m   map[string]item
	now func() time.Time
}

var _ pr.Provider = (*Provider)(nil)

func New() *Provider {
	return &Provider{m: make(map[string]item), now: time.Now}
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	it, ok := p.m[key]
	if !ok {
		return nil, false, nil
	}
	if !it.exp.IsZero() && p.now().After(it.exp) {
		delete(p.m, key)
		return nil, false, nil
	}
	return append([]byte(nil), it.v...), true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	var exp time.Time
	if ttl > 0 {
		exp = p.now().Add(ttl)
	}
	p.mu.Lock()
	p.m[key] = item{v: append([]byte(nil), value...), exp: exp}
	p.mu.Unlock()
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.m, key)
	p.mu.Unlock()
	return nil
}

func (p *Provider) Close(_ context.Context) error { return nil }
