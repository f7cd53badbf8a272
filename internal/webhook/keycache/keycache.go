// Package keycache caches the directory's JWT verification keys. Key
// fetches hit a rate-limited directory endpoint, so cached copies are kept
// in Redis (shared across replicas) and in process memory.
package keycache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"cdcam/internal/directory"
	"cdcam/internal/platform/metrics"
)

const redisKeyPrefix = "cdcam:jwt-key:"

// Fetcher retrieves the current key from the directory.
type Fetcher interface {
	GetJWTPublicKey(ctx context.Context, tenant directory.Tenant) (directory.PublicKey, error)
}

type memEntry struct {
	key     directory.PublicKey
	expires time.Time
}

// Cache is a two-level verification key cache. A nil Redis client degrades
// to memory-only caching.
type Cache struct {
	fetcher Fetcher
	redis   *redis.Client
	logger  *slog.Logger
	metrics *metrics.Metrics
	ttl     time.Duration

	mu  sync.RWMutex
	mem map[string]memEntry
}

func New(fetcher Fetcher, redisClient *redis.Client, logger *slog.Logger, m *metrics.Metrics, ttl time.Duration) *Cache {
	return &Cache{
		fetcher: fetcher,
		redis:   redisClient,
		logger:  logger,
		metrics: m,
		ttl:     ttl,
		mem:     make(map[string]memEntry),
	}
}

// Get returns the tenant's verification key, fetching it from the directory
// on a cache miss.
func (c *Cache) Get(ctx context.Context, tenant directory.Tenant) (directory.PublicKey, error) {
	c.mu.RLock()
	entry, ok := c.mem[tenant.Name]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.expires) {
		c.metrics.KeyCacheHitsTotal.WithLabelValues("memory_hit").Inc()
		return entry.key, nil
	}

	if key, ok := c.fromRedis(ctx, tenant); ok {
		c.metrics.KeyCacheHitsTotal.WithLabelValues("redis_hit").Inc()
		c.storeMem(tenant, key)
		return key, nil
	}

	c.metrics.KeyCacheHitsTotal.WithLabelValues("miss").Inc()
	key, err := c.fetcher.GetJWTPublicKey(ctx, tenant)
	if err != nil {
		return directory.PublicKey{}, err
	}

	c.storeMem(tenant, key)
	c.storeRedis(ctx, tenant, key)
	return key, nil
}

// Invalidate drops the cached key for a tenant. Called when verification
// fails, since the directory rotates keys without notice.
func (c *Cache) Invalidate(ctx context.Context, tenant directory.Tenant) {
	c.mu.Lock()
	delete(c.mem, tenant.Name)
	c.mu.Unlock()

	if c.redis != nil {
		if err := c.redis.Del(ctx, redisKeyPrefix+tenant.Name).Err(); err != nil {
			c.logger.WarnContext(ctx, "key cache redis delete failed", "error", err)
		}
	}
}

func (c *Cache) storeMem(tenant directory.Tenant, key directory.PublicKey) {
	c.mu.Lock()
	c.mem[tenant.Name] = memEntry{key: key, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *Cache) fromRedis(ctx context.Context, tenant directory.Tenant) (directory.PublicKey, bool) {
	if c.redis == nil {
		return directory.PublicKey{}, false
	}

	raw, err := c.redis.Get(ctx, redisKeyPrefix+tenant.Name).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WarnContext(ctx, "key cache redis read failed", "error", err)
		}
		return directory.PublicKey{}, false
	}

	var key directory.PublicKey
	if err := json.Unmarshal(raw, &key); err != nil {
		c.logger.WarnContext(ctx, "key cache redis entry corrupt", "error", err)
		return directory.PublicKey{}, false
	}
	return key, true
}

func (c *Cache) storeRedis(ctx context.Context, tenant directory.Tenant, key directory.PublicKey) {
	if c.redis == nil {
		return
	}

	raw, err := json.Marshal(key)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, redisKeyPrefix+tenant.Name, raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "key cache redis write failed", "error", err)
	}
}
