//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package rediscache shares the active-grant cache between engine replicas
// through Redis.
//
// Each user's active grants are stored as one JSON value under
// "<prefix><userID>".  Entries live no longer than the configured TTL and
// never past the earliest expiry they contain.  Because the grant manager
// confirms every hit against the store, Redis being unavailable degrades to
// cache misses.
package rediscache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/caseaccess/accessengine/internal/logging"
	"github.com/caseaccess/accessengine/pkg/core/config"
	"github.com/caseaccess/accessengine/pkg/core/model"
	"github.com/redis/go-redis/v9"
)

var logger = logging.GetLogger("accessengine.grants.redis")

const (
	// DefaultPrefix namespaces cache keys.
	DefaultPrefix = "ace:grants:"
	// DefaultTTL bounds how long an entry may be served.
	DefaultTTL = 5 * time.Minute

	scanBatch = 100
)

// Cache implements grants.Cache on a Redis client.
type Cache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// Option customizes a Cache.
type Option func(*Cache)

// WithPrefix overrides DefaultPrefix.
func WithPrefix(p string) Option {
	return func(c *Cache) {
		c.prefix = p
	}
}

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithNow sets the time source used to compute entry TTLs.
func WithNow(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New wraps an existing client.
func New(client redis.UniversalClient, opts ...Option) *Cache {
	c := &Cache{
		client: client,
		prefix: DefaultPrefix,
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig connects using the redis.* configuration keys and checks the
// connection.
func NewFromConfig(ctx context.Context, opts ...Option) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.VConfig.GetString(config.RedisAddr),
		Password: config.VConfig.GetString(config.RedisPassword),
		DB:       config.VConfig.GetInt(config.RedisDB),
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return New(client, opts...), nil
}

// Close releases the client.
func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) key(userID string) string {
	return c.prefix + userID
}

// entryTTL is the lifetime of an entry holding grants: the configured TTL,
// shortened to the first expiry.  A non-positive result means the entry is
// already stale.
func entryTTL(grants []*model.Grant, now time.Time, ttl time.Duration) time.Duration {
	for _, g := range grants {
		if remaining := g.ExpiresAt.Sub(now); remaining < ttl {
			ttl = remaining
		}
	}
	return ttl
}

func encode(grants []*model.Grant) ([]byte, error) {
	if grants == nil {
		grants = []*model.Grant{}
	}
	return json.Marshal(grants)
}

func decode(data []byte) ([]*model.Grant, error) {
	var grants []*model.Grant
	if err := json.Unmarshal(data, &grants); err != nil {
		return nil, err
	}
	return grants, nil
}

// Get implements grants.Cache.
func (c *Cache) Get(ctx context.Context, userID string) ([]*model.Grant, bool) {
	data, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Warnf(userID, "Get", "redis get failed: %v", err)
		}
		return nil, false
	}
	grants, err := decode(data)
	if err != nil {
		logger.Warnf(userID, "Get", "dropping undecodable entry: %v", err)
		c.Invalidate(ctx, userID)
		return nil, false
	}
	return grants, true
}

// Put implements grants.Cache.
func (c *Cache) Put(ctx context.Context, userID string, grants []*model.Grant) {
	ttl := entryTTL(grants, c.now(), c.ttl)
	if ttl <= 0 {
		c.Invalidate(ctx, userID)
		return
	}
	data, err := encode(grants)
	if err != nil {
		logger.Warnf(userID, "Put", "encoding grants: %v", err)
		return
	}
	if err := c.client.Set(ctx, c.key(userID), data, ttl).Err(); err != nil {
		logger.Warnf(userID, "Put", "redis set failed: %v", err)
	}
}

// Invalidate implements grants.Cache.
func (c *Cache) Invalidate(ctx context.Context, userID string) {
	if err := c.client.Del(ctx, c.key(userID)).Err(); err != nil {
		logger.Warnf(userID, "Invalidate", "redis del failed: %v", err)
	}
}

// Sweep implements grants.Cache.  Entries normally expire on their own; the
// sweep rewrites those still holding grants that lapsed or were cut short.
func (c *Cache) Sweep(ctx context.Context, now time.Time) int {
	dropped := 0
	iter := c.client.Scan(ctx, 0, c.prefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		userID := strings.TrimPrefix(key, c.prefix)

		grants, ok := c.Get(ctx, userID)
		if !ok {
			continue
		}
		kept := make([]*model.Grant, 0, len(grants))
		for _, g := range grants {
			if g.ActiveAt(now) {
				kept = append(kept, g)
			}
		}
		if len(kept) == len(grants) {
			continue
		}
		dropped += len(grants) - len(kept)
		if len(kept) == 0 {
			c.Invalidate(ctx, userID)
			continue
		}
		// the remaining TTL is kept; KEEPTTL avoids extending the entry
		data, err := encode(kept)
		if err != nil {
			continue
		}
		if err := c.client.SetArgs(ctx, key, data, redis.SetArgs{KeepTTL: true, Mode: "XX"}).Err(); err != nil && err != redis.Nil {
			logger.SysWarnf("redis sweep rewrite of %s failed: %v", key, err)
		}
	}
	if err := iter.Err(); err != nil {
		logger.SysWarnf("redis sweep scan failed: %v", err)
	}
	return dropped
}
