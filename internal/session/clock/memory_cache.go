package clock

import (
	"sync"

	"github.com/huddleworks/livesession/internal/session/ports"
)

// MemoryCache is the in-process duration cache used by tests.
type MemoryCache struct {
	mu sync.Mutex
	m  map[string]int64
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{m: make(map[string]int64)}
}

func (c *MemoryCache) Put(sessionID string, seconds int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[sessionID] = seconds
	return nil
}

func (c *MemoryCache) Get(sessionID string) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[sessionID]
	return v, ok, nil
}

var _ ports.DurationCache = (*MemoryCache)(nil)
