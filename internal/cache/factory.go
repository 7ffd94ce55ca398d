package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"

	EvictionNone = "none"
	EvictionTTL  = "ttl"
	EvictionLRU  = "lru"
)

// Config selects a backend and eviction policy. Redis and Postgres must be
// set when the matching backend is chosen.
type Config struct {
	Backend    string
	Eviction   string
	TTL        time.Duration
	MaxEntries int
	Dir        string
	Redis      *redis.Client
	Postgres   Querier
}

// New builds the configured Store.
func New(ctx context.Context, cfg Config) (Store, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		backend = BackendMemory
	}
	eviction := strings.ToLower(strings.TrimSpace(cfg.Eviction))
	if eviction == "" {
		eviction = EvictionNone
	}
	if eviction == EvictionTTL && cfg.TTL <= 0 {
		return nil, fmt.Errorf("%w: ttl eviction needs a positive ttl", ErrUnsupported)
	}
	ttl := time.Duration(0)
	if eviction == EvictionTTL {
		ttl = cfg.TTL
	}

	switch backend {
	case BackendMemory:
		switch eviction {
		case EvictionNone:
			return NewMemory(), nil
		case EvictionTTL:
			return NewTTL(ttl), nil
		case EvictionLRU:
			return NewLRU(cfg.MaxEntries)
		}
	case BackendFile:
		if eviction == EvictionNone {
			return NewFileStore(cfg.Dir)
		}
	case BackendRedis:
		if cfg.Redis == nil {
			return nil, fmt.Errorf("%w: redis client is required", ErrUnsupported)
		}
		if eviction != EvictionLRU {
			return NewRedis(cfg.Redis, ttl), nil
		}
	case BackendPostgres:
		if cfg.Postgres == nil {
			return nil, fmt.Errorf("%w: postgres pool is required", ErrUnsupported)
		}
		if eviction != EvictionLRU {
			store := NewPostgres(cfg.Postgres, ttl)
			if err := store.EnsureSchema(ctx); err != nil {
				return nil, err
			}
			return store, nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrUnsupported, backend, eviction)
}
