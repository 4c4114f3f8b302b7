// Package cache holds the per-day usage counters that every replica of the
// service must agree on. It is backed by Redis (or Dragonfly) and is optional:
// without it, counters live in process memory.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key this service writes.
const DefaultPrefix = "curriculum-ai"

const (
	dialTimeout = 5 * time.Second
	ioTimeout   = 3 * time.Second
)

// Cache is a namespaced counter store on top of a Redis client.
type Cache struct {
	Client *redis.Client
	prefix string
}

// Option configures a Cache.
type Option func(*Cache)

// WithPrefix sets the key namespace. Empty keeps DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(c *Cache) {
		if p := strings.Trim(prefix, ":"); p != "" {
			c.prefix = p
		}
	}
}

// ParseURL validates a Redis connection URL and applies the service's timeouts.
func ParseURL(url string) (*redis.Options, error) {
	if url == "" {
		return nil, errors.New("LEARN_CACHE_URL is empty")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid LEARN_CACHE_URL: %w", err)
	}
	opts.DialTimeout = dialTimeout
	opts.ReadTimeout = ioTimeout
	opts.WriteTimeout = ioTimeout
	return opts, nil
}

// New connects and pings. An unreachable server fails startup rather than
// silently splitting counters per replica.
func New(ctx context.Context, url string, opts ...Option) (*Cache, error) {
	redisOpts, err := ParseURL(url)
	if err != nil {
		return nil, err
	}

	c := &Cache{Client: redis.NewClient(redisOpts), prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.Client.Ping(ctx).Err(); err != nil {
		_ = c.Client.Close()
		return nil, fmt.Errorf("cache unreachable at %s: %w", redisOpts.Addr, err)
	}
	return c, nil
}

// Key joins parts under the namespace, e.g. "curriculum-ai:budget:u1:2026-03-01".
func (c *Cache) Key(parts ...string) string {
	return c.prefix + ":" + strings.Join(parts, ":")
}

// Counter returns the value stored at key. A missing key reads as zero.
func (c *Cache) Counter(ctx context.Context, key string) (int64, error) {
	raw, err := c.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading counter %s: %w", key, err)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("counter %s holds %q: %w", key, raw, err)
	}
	return n, nil
}

// IncrBy adds n to the counter at key and re-arms its expiry in the same
// transaction. It returns the new value.
func (c *Cache) IncrBy(ctx context.Context, key string, n int64, ttl time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := c.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.IncrBy(ctx, key, n)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("incrementing counter %s: %w", key, err)
	}
	return incr.Val(), nil
}

// HealthCheck is the cache's readiness probe.
func (c *Cache) HealthCheck(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache ping: %w", err)
	}
	return nil
}

// Close releases the client's connections.
func (c *Cache) Close() error {
	return c.Client.Close()
}
