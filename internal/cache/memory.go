package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	gocache "github.com/patrickmn/go-cache"
)

// Memory keeps entries for the life of the process.
type Memory struct {
	entries sync.Map
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Get(ctx context.Context, key string) (*Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	v, ok := m.entries.Load(key)
	if !ok {
		return nil, false, nil
	}
	return copyEntry(v.(Entry)), true, nil
}

func (m *Memory) Set(ctx context.Context, key string, artifact []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.entries.LoadOrStore(key, newEntry(key, artifact))
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.entries.Delete(key)
	return nil
}

// TTL expires entries a fixed duration after they were stored.
type TTL struct {
	items *gocache.Cache
}

func NewTTL(ttl time.Duration) *TTL {
	cleanup := ttl * 2
	if cleanup < time.Minute {
		cleanup = time.Minute
	}
	return &TTL{items: gocache.New(ttl, cleanup)}
}

func (c *TTL) Get(ctx context.Context, key string) (*Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	v, ok := c.items.Get(key)
	if !ok {
		return nil, false, nil
	}
	return copyEntry(v.(Entry)), true, nil
}

func (c *TTL) Set(ctx context.Context, key string, artifact []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	// Add refuses keys that are still live.
	_ = c.items.Add(key, newEntry(key, artifact), gocache.DefaultExpiration)
	return nil
}

func (c *TTL) Delete(_ context.Context, key string) error {
	c.items.Delete(key)
	return nil
}

// LRU holds at most size entries and evicts the least recently read.
type LRU struct {
	items *lru.Cache[string, Entry]
}

func NewLRU(size int) (*LRU, error) {
	items, err := lru.New[string, Entry](size)
	if err != nil {
		return nil, err
	}
	return &LRU{items: items}, nil
}

func (c *LRU) Get(ctx context.Context, key string) (*Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	e, ok := c.items.Get(key)
	if !ok {
		return nil, false, nil
	}
	return copyEntry(e), true, nil
}

func (c *LRU) Set(ctx context.Context, key string, artifact []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.items.ContainsOrAdd(key, newEntry(key, artifact))
	return nil
}

func (c *LRU) Delete(_ context.Context, key string) error {
	c.items.Remove(key)
	return nil
}

// Len reports the number of live entries.
func (c *LRU) Len() int { return c.items.Len() }
