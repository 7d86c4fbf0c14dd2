//
//  Copyright © Manetu Inc. All rights reserved.
//

package grants

import (
	"context"
	"sync"
	"time"

	"github.com/caseaccess/accessengine/pkg/core/model"
	"github.com/mohae/deepcopy"
)

// Cache holds each user's active grants.  It is only an optimisation: the
// manager rechecks a cached grant against the clock and the store before
// using it, and asks the store whenever the cached list has no covering
// grant.  A stale entry can cost a lookup but never grants or hides access.
type Cache interface {
	Get(ctx context.Context, userID string) ([]*model.Grant, bool)
	Put(ctx context.Context, userID string, grants []*model.Grant)
	Invalidate(ctx context.Context, userID string)
	// Sweep drops grants that are no longer active at now and returns how
	// many were dropped.
	Sweep(ctx context.Context, now time.Time) int
}

type noCache struct{}

// NoCache returns a Cache that never hits.
func NoCache() Cache {
	return noCache{}
}

func (noCache) Get(context.Context, string) ([]*model.Grant, bool) { return nil, false }
func (noCache) Put(context.Context, string, []*model.Grant)        {}
func (noCache) Invalidate(context.Context, string)                 {}
func (noCache) Sweep(context.Context, time.Time) int               { return 0 }

// MemoryCache is an in-process Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string][]*model.Grant
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string][]*model.Grant)}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, userID string) ([]*model.Grant, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	grants, ok := c.entries[userID]
	if !ok {
		return nil, false
	}
	return deepcopy.Copy(grants).([]*model.Grant), true
}

// Put implements Cache.
func (c *MemoryCache) Put(_ context.Context, userID string, grants []*model.Grant) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = deepcopy.Copy(grants).([]*model.Grant)
}

// Invalidate implements Cache.
func (c *MemoryCache) Invalidate(_ context.Context, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}

// Sweep implements Cache.
func (c *MemoryCache) Sweep(_ context.Context, now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := 0
	for user, grants := range c.entries {
		kept := grants[:0]
		for _, g := range grants {
			if g.ActiveAt(now) {
				kept = append(kept, g)
			} else {
				dropped++
			}
		}
		if len(kept) == 0 {
			delete(c.entries, user)
		} else {
			c.entries[user] = kept
		}
	}
	return dropped
}

// Len returns the number of cached users.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
