package enrichment

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mlidstrom/castellan/internal/event"
)

// RedisCache caches resolved EnrichmentData in Redis, keyed by address with
// a configurable per-entry TTL.
type RedisCache struct {
	client    redis.Cmdable
	keyPrefix string
}

// NewRedisCache returns a RedisCache. keyPrefix namespaces entries so the
// enrichment cache can share a Redis instance with other subsystems.
func NewRedisCache(client redis.Cmdable, keyPrefix string) *RedisCache {
	if keyPrefix == "" {
		keyPrefix = "castellan:enrichment:"
	}

	return &RedisCache{client: client, keyPrefix: keyPrefix}
}

func (c *RedisCache) key(ip string) string {
	return c.keyPrefix + ip
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, ip string) (*event.EnrichmentData, bool, error) {
	raw, err := c.client.Get(ctx, c.key(ip)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, err
	}

	data, err := unmarshalEntry(raw)
	if err != nil {
		return nil, false, err
	}

	return data, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, ip string, data *event.EnrichmentData, ttl time.Duration) error {
	raw, err := marshalEntry(data)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, c.key(ip), raw, ttl).Err()
}
