package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-boxoffice/internal/logger"
)

// KeyPrefix namespaces every report key.
const KeyPrefix = "boxoffice:report"

// DefaultTTL applies when a cache is built with a zero TTL.
const DefaultTTL = 30 * time.Second

// Connect opens a Redis client and checks it with a ping.
func Connect(ctx context.Context, addr string, log *logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		DB:       0,
		PoolSize: 10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := client.Ping(pingCtx).Result(); err != nil {
		client.Close()
		log.Error("CACHE", fmt.Sprintf("Failed to connect to Redis at %s: %v", addr, err))
		return nil, err
	}

	log.Info("CACHE", fmt.Sprintf("Connected to Redis at %s for report caching", addr))
	return client, nil
}

// Key builds a report key from a view name and optional parameters.
func Key(view string, params ...string) string {
	parts := append([]string{KeyPrefix, view}, params...)
	return strings.Join(parts, ":")
}

// ReportCache stores rendered report views as JSON with a short TTL.
type ReportCache struct {
	Client *redis.Client
	TTL    time.Duration
	Logger *logger.Logger
}

func NewReportCache(client *redis.Client, ttl time.Duration, log *logger.Logger) *ReportCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ReportCache{Client: client, TTL: ttl, Logger: log}
}

// Get loads key into dest. A missing key is reported as (false, nil).
func (c *ReportCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if c.Client == nil {
		return false, fmt.Errorf("redis client not initialized")
	}

	raw, err := c.Client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		c.Logger.LogCache("MISS", key)
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("failed to get %s from Redis: %w", key, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached %s: %w", key, err)
	}
	c.Logger.LogCache("HIT", key)
	return true, nil
}

// Set stores value under key for the cache TTL.
func (c *ReportCache) Set(ctx context.Context, key string, value interface{}) error {
	if c.Client == nil {
		return fmt.Errorf("redis client not initialized")
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := c.Client.Set(ctx, key, raw, c.TTL).Err(); err != nil {
		return fmt.Errorf("failed to store %s in Redis: %w", key, err)
	}
	c.Logger.LogCache("SET", key)
	return nil
}

// Invalidate drops every cached report view. Called after a sale is
// recorded so the next read reflects it.
func (c *ReportCache) Invalidate(ctx context.Context) error {
	if c.Client == nil {
		return fmt.Errorf("redis client not initialized")
	}

	iter := c.Client.Scan(ctx, 0, KeyPrefix+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan report keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.Client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete report keys: %w", err)
	}
	c.Logger.LogCache("INVALIDATE", fmt.Sprintf("%s:* (%d keys)", KeyPrefix, len(keys)))
	return nil
}
