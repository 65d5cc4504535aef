package selection

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/unkn0wn-root/inferkit/provider"
	"github.com/unkn0wn-root/inferkit/provider/bigcache"
	"github.com/unkn0wn-root/inferkit/provider/file"
	"github.com/unkn0wn-root/inferkit/provider/memory"
	"github.com/unkn0wn-root/inferkit/provider/redis"
	"github.com/unkn0wn-root/inferkit/provider/ristretto"
)

// Backend names accepted by OpenProvider.
const (
	BackendFile      = "file"
	BackendMemory    = "memory"
	BackendRistretto = "ristretto"
	BackendBigcache  = "bigcache"
	BackendRedis     = "redis"
)

type BackendConfig struct {
	Backend string // "" => file

	Dir string // file backend; "" => file.DefaultDir()

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// OpenProvider builds the slot store named by cfg.Backend. file and redis
// survive a restart; memory, ristretto and bigcache hold the slot for the
// lifetime of the process.
func OpenProvider(ctx context.Context, cfg BackendConfig) (provider.Provider, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendFile:
		dir := cfg.Dir
		if dir == "" {
			d, err := file.DefaultDir()
			if err != nil {
				return nil, fmt.Errorf("selection: %w", err)
			}
			dir = d
		}
		return file.New(dir)
	case BackendMemory:
		return memory.New(), nil
	case BackendRistretto:
		return ristretto.New(ristretto.DefaultConfig())
	case BackendBigcache:
		return bigcache.New(bigcache.Config{LifeWindow: 24 * time.Hour})
	case BackendRedis:
		addr := cfg.RedisAddr
		if addr == "" {
			addr = "127.0.0.1:6379"
		}
		return redis.Dial(ctx, addr, cfg.RedisPassword, cfg.RedisDB)
	}
	return nil, fmt.Errorf("selection: unknown backend %q", cfg.Backend)
}
