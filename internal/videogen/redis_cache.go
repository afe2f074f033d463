package videogen

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheKeyPrefix = "signvideo:"
	cacheTTL       = 24 * time.Hour
	cacheOpTimeout = 500 * time.Millisecond
)

// RedisURLCache shares generated-video URLs between server instances so a
// sequence rendered anywhere skips straight to the URL. Lookups degrade to
// misses on any Redis error; the disk check remains authoritative.
type RedisURLCache struct {
	rdb *redis.Client
	log *slog.Logger
}

// NewRedisURLCache pings the server and returns the cache, or an error for
// the caller to fall back on.
func NewRedisURLCache(addr, password string, db int) (*RedisURLCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}

	return &RedisURLCache{rdb: rdb, log: slog.Default()}, nil
}

func (c *RedisURLCache) Get(ctx context.Context, key string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()

	url, err := c.rdb.Get(ctx, cacheKeyPrefix+key).Result()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("video cache get failed", "error", err)
		}
		return "", false
	}
	return url, true
}

func (c *RedisURLCache) Set(ctx context.Context, key, url string) {
	ctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()

	if err := c.rdb.Set(ctx, cacheKeyPrefix+key, url, cacheTTL).Err(); err != nil {
		c.log.Warn("video cache set failed", "error", err)
	}
}

func (c *RedisURLCache) Close() error { return c.rdb.Close() }
