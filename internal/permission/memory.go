package permission

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/tripsync/backend/internal/domain"
)

type cacheKey struct {
	tripID uuid.UUID
	userID uuid.UUID
}

type cacheEntry struct {
	role    domain.Role
	expires time.Time
}

// MemoryCache is an in-process Cache. It is what a device uses, and what the
// server falls back to when no Redis URL is configured.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[cacheKey]cacheEntry
	now     func() time.Time
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[cacheKey]cacheEntry), now: time.Now}
}

var _ Cache = (*MemoryCache)(nil)

func (c *MemoryCache) Get(_ context.Context, userID, tripID uuid.UUID) (domain.Role, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := cacheKey{tripID: tripID, userID: userID}
	e, ok := c.entries[k]
	if !ok {
		return "", false, nil
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, k)
		return "", false, nil
	}
	return e.role, true, nil
}

func (c *MemoryCache) Set(_ context.Context, userID, tripID uuid.UUID, role domain.Role, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey{tripID: tripID, userID: userID}] = cacheEntry{role: role, expires: c.now().Add(ttl)}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, userID, tripID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey{tripID: tripID, userID: userID})
	return nil
}

func (c *MemoryCache) DeleteTrip(_ context.Context, tripID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.tripID == tripID {
			delete(c.entries, k)
		}
	}
	return nil
}
