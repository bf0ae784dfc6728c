package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v2"
	"github.com/redis/go-redis/v9"
)

// Throttle rate limits verification resends per key.
type Throttle interface {
	// Allow reports whether key may go ahead and starts its cooldown if so.
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisThrottle shares cooldowns between every instance using the same redis.
type RedisThrottle struct {
	client   redis.UniversalClient
	cooldown time.Duration
	prefix   string
}

func NewRedisThrottle(client redis.UniversalClient, cooldown time.Duration) *RedisThrottle {
	return &RedisThrottle{client: client, cooldown: cooldown, prefix: "throttle:resend:"}
}

func (t *RedisThrottle) Allow(ctx context.Context, key string) (bool, error) {
	ok, err := t.client.SetNX(ctx, t.prefix+key, 1, t.cooldown).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set throttle key, %w", err)
	}

	return ok, nil
}

// MemoryThrottle is the single instance fallback when no redis is configured.
type MemoryThrottle struct {
	mu    sync.Mutex
	cache *ttlcache.Cache
}

func NewMemoryThrottle(cooldown time.Duration) *MemoryThrottle {
	cache := ttlcache.NewCache()
	cache.SetTTL(cooldown)
	cache.SkipTTLExtensionOnHit(true)

	return &MemoryThrottle{cache: cache}
}

func (t *MemoryThrottle) Allow(_ context.Context, key string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.cache.Get(key); err == nil {
		return false, nil
	}

	if err := t.cache.Set(key, struct{}{}); err != nil {
		return false, fmt.Errorf("failed to set throttle key, %w", err)
	}

	return true, nil
}

func (t *MemoryThrottle) Close() error {
	return t.cache.Close()
}
