package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/flohub/flohub/internal/utils"
)

// Cache stores opaque values for a limited time.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) error
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// sweepInterval is the minimum time between two full scans for expired
// entries triggered by Set.
const sweepInterval = time.Minute

// MemoryCache is a process-local Cache. Expired entries are dropped on read
// and swept at most once per sweepInterval on write.
type MemoryCache struct {
	mu        sync.RWMutex
	entries   map[string]entry
	clock     utils.Clock
	nextSweep time.Time
}

func NewMemoryCache(clock utils.Clock) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]entry),
		clock:   clock,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !c.clock.Now().Before(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	return e.value, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if !now.Before(c.nextSweep) {
		c.sweep(now)
		c.nextSweep = now.Add(sweepInterval)
	}
	c.entries[key] = entry{value: value, expiresAt: now.Add(ttl)}
	return nil
}

func (c *MemoryCache) sweep(now time.Time) {
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *MemoryCache) DeletePrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return nil
}
