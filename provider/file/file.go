// Package file is a Provider that keeps one file per key under a directory,
// so values survive a restart.
package file

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	pr "github.com/unkn0wn-root/inferkit/provider"
)

const ext = ".slot"

// record is the on-disk envelope. Get returns V unchanged.
type record struct {
	V   []byte `msgpack:"v"`
	Exp int64  `msgpack:"exp,omitempty"` // unix nanos; 0 => no TTL
}

type Provider struct {
	dir string
	now func() time.Time

	mu sync.Mutex // serializes writers in this process
}

var _ pr.Provider = (*Provider)(nil)

// DefaultDir is <user config dir>/inferkit.
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "inferkit"), nil
}

// New opens (and creates) dir.
func New(dir string) (*Provider, error) {
	if dir == "" {
		return nil, errors.New("file provider: dir is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("file provider: %w", err)
	}
	return &Provider{dir: dir, now: time.Now}, nil
}

// path hex-encodes key so any key maps to a valid file name.
func (p *Provider) path(key string) string {
	return filepath.Join(p.dir, hex.EncodeToString([]byte(key))+ext)
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := os.ReadFile(p.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var r record
	if err := msgpack.Unmarshal(b, &r); err != nil {
		// unreadable envelope: treat as a miss and let the next Set replace it
		_ = os.Remove(p.path(key))
		return nil, false, nil
	}
	if r.Exp != 0 && p.now().UnixNano() > r.Exp {
		_ = os.Remove(p.path(key))
		return nil, false, nil
	}
	if r.V == nil {
		r.V = []byte{}
	}
	return r.V, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	r := record{V: value}
	if ttl > 0 {
		r.Exp = p.now().Add(ttl).UnixNano()
	}
	b, err := msgpack.Marshal(r)
	if err != nil {
		return false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := writeAtomic(p.path(key), b); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := os.Remove(p.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (p *Provider) Close(_ context.Context) error { return nil }

// writeAtomic replaces path with data via a synced temp file and rename, so a
// reader sees either the old or the new value.
func writeAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".tmp-")
	if err != nil {
		return err
	}
	tmp := f.Name()
	ok := false
	defer func() {
		if !ok {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	ok = true
	return nil
}
