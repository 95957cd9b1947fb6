package cache

import (
	"context"
	"sync"

	"github.com/arturoeanton/bookverse/internal/domain"
)

// MemorySessionCache holds the session for the lifetime of the process.
type MemorySessionCache struct {
	mu      sync.Mutex
	session *domain.Session
}

// NewMemorySessionCache creates an empty cache, optionally pre-loaded.
func NewMemorySessionCache(initial *domain.Session) *MemorySessionCache {
	return &MemorySessionCache{session: initial}
}

func (c *MemorySessionCache) Load(context.Context) (*domain.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, nil
	}
	s := *c.session
	return &s, nil
}

func (c *MemorySessionCache) Save(_ context.Context, s *domain.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *s
	c.session = &cp
	return nil
}

func (c *MemorySessionCache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = nil
	return nil
}
