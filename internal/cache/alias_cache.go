// Package cache holds the optional Redis cache for rate class aliases. Alias
// tables change rarely but are read on every matrix email, so a short TTL
// cache keeps repeat ingestions off the altitude database.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	aliasKeyPrefix  = "matrix:rate_class_aliases"
	defaultAliasTTL = time.Hour
)

// RateClassAliasCache caches the alias-to-rate-class-ids mapping.
type RateClassAliasCache interface {
	Get(ctx context.Context) (map[string][]int64, bool, error)
	Set(ctx context.Context, aliases map[string][]int64) error
}

type redisAliasCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopAliasCache struct{}

// NewRateClassAliasCache connects to Redis at the given URL. An empty URL
// disables caching.
func NewRateClassAliasCache(redisURL string, ttl time.Duration) (RateClassAliasCache, error) {
	if redisURL == "" {
		return &noopAliasCache{}, nil
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	if ttl <= 0 {
		ttl = defaultAliasTTL
	}

	return &redisAliasCache{client: client, ttl: ttl}, nil
}

// NewNoopRateClassAliasCache returns a cache that never hits.
func NewNoopRateClassAliasCache() RateClassAliasCache {
	return &noopAliasCache{}
}

func (c *redisAliasCache) Get(ctx context.Context) (map[string][]int64, bool, error) {
	payload, err := c.client.Get(ctx, aliasKeyPrefix).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var aliases map[string][]int64
	if err := json.Unmarshal(payload, &aliases); err != nil {
		return nil, false, fmt.Errorf("decode rate class alias cache: %w", err)
	}
	return aliases, true, nil
}

func (c *redisAliasCache) Set(ctx context.Context, aliases map[string][]int64) error {
	payload, err := json.Marshal(aliases)
	if err != nil {
		return fmt.Errorf("encode rate class alias cache: %w", err)
	}
	if err := c.client.Set(ctx, aliasKeyPrefix, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *noopAliasCache) Get(context.Context) (map[string][]int64, bool, error) {
	return nil, false, nil
}

func (c *noopAliasCache) Set(context.Context, map[string][]int64) error {
	return nil
}
