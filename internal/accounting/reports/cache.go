package reports

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const cachePrefix = "ledger:reports"

// CacheMetrics observes cache lookups.
type CacheMetrics interface {
	ObserveCache(report string, hit bool)
}

// Cache wraps Redis based report caching with per-tenant version keys. A
// posting bumps the tenant version so older entries are never read again and
// expire through their TTL.
type Cache struct {
	client  *redis.Client
	ttl     time.Duration
	metrics CacheMetrics
	group   singleflight.Group
}

// NewCache instantiates the cache helper. A nil client disables caching but
// still collapses concurrent identical builds.
func NewCache(client *redis.Client, ttl time.Duration, metrics CacheMetrics) *Cache {
	return &Cache{client: client, ttl: ttl, metrics: metrics}
}

func versionKey(tenantID int64) string {
	return cachePrefix + ":version:" + strconv.FormatInt(tenantID, 10)
}

// Version returns the tenant's current cache version. A missing key is
// version zero.
func (c *Cache) Version(ctx context.Context, tenantID int64) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, versionKey(tenantID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return ver, err
}

// Bump invalidates every cached report of the tenant.
func (c *Cache) Bump(ctx context.Context, tenantID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, versionKey(tenantID)).Err()
}

// BuildKey composes the cache key with the tenant's current version.
func (c *Cache) BuildKey(ctx context.Context, tenantID int64, report string, parts ...string) (string, error) {
	ver, err := c.Version(ctx, tenantID)
	if err != nil {
		return "", err
	}
	segments := append([]string{cachePrefix, strconv.FormatInt(tenantID, 10), "v" + strconv.FormatInt(ver, 10), report}, parts...)
	return strings.Join(segments, ":"), nil
}

func (c *Cache) observe(report string, hit bool) {
	if c != nil && c.metrics != nil {
		c.metrics.ObserveCache(report, hit)
	}
}

// fetch returns the cached report or builds it with load. Redis failures fall
// back to building without the cache.
func fetch[T any](ctx context.Context, c *Cache, tenantID int64, report string, parts []string, load func(context.Context) (T, error)) (T, error) {
	var zero T
	if c == nil {
		return load(ctx)
	}
	key, err := c.BuildKey(ctx, tenantID, report, parts...)
	if err != nil {
		return load(ctx)
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		if c.client != nil {
			payload, err := c.client.Get(ctx, key).Bytes()
			if err == nil {
				var cached T
				if err := json.Unmarshal(payload, &cached); err == nil {
					c.observe(report, true)
					return cached, nil
				}
			}
		}
		c.observe(report, false)
		value, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if c.client != nil {
			if raw, err := json.Marshal(value); err == nil {
				_ = c.client.Set(ctx, key, raw, c.ttl).Err()
			}
		}
		return value, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}
