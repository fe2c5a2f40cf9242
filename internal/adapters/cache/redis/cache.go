// Package redis provides a Redis-backed cache-aside store for trackable reads.
// Several worktally processes can share it; transitions invalidate by key.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hylla/worktally/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// Config holds cache configuration.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		Addr:   "localhost:6379",
		Prefix: "worktally:trackable:",
		TTL:    5 * time.Minute,
	}
}

func (cfg Config) withDefaults() Config {
	def := DefaultConfig()
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = def.Addr
	}
	if cfg.Prefix == "" {
		cfg.Prefix = def.Prefix
	}
	return cfg
}

// Stats tracks cache statistics.
type Stats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Sets    uint64 `json:"sets"`
	Deletes uint64 `json:"deletes"`
	Errors  uint64 `json:"errors"`
}

// Cache stores JSON-encoded trackables under prefixed keys.
type Cache struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
	stats  Stats
}

// New wraps an existing client.
func New(client *goredis.Client, prefix string, ttl time.Duration) *Cache {
	return &Cache{client: client, prefix: prefix, ttl: ttl}
}

// Dial creates a client from cfg and verifies it with a ping.
// A blank Addr or Prefix falls back to DefaultConfig.
func Dial(ctx context.Context, cfg Config) (*Cache, error) {
	cfg = cfg.withDefaults()
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return New(client, cfg.Prefix, cfg.TTL), nil
}

// Get returns the cached trackable. A redis.Nil reply is a miss, not an error.
func (c *Cache) Get(ctx context.Context, id string) (domain.Trackable, bool, error) {
	data, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			atomic.AddUint64(&c.stats.Misses, 1)
			return domain.Trackable{}, false, nil
		}
		atomic.AddUint64(&c.stats.Errors, 1)
		return domain.Trackable{}, false, fmt.Errorf("cache get error: %w", err)
	}
	var t domain.Trackable
	if err := json.Unmarshal(data, &t); err != nil {
		atomic.AddUint64(&c.stats.Errors, 1)
		return domain.Trackable{}, false, fmt.Errorf("cache unmarshal error: %w", err)
	}
	atomic.AddUint64(&c.stats.Hits, 1)
	return t, true, nil
}

// Set stores t with the configured TTL.
func (c *Cache) Set(ctx context.Context, t domain.Trackable) error {
	data, err := json.Marshal(t)
	if err != nil {
		atomic.AddUint64(&c.stats.Errors, 1)
		return fmt.Errorf("cache marshal error: %w", err)
	}
	if err := c.client.Set(ctx, c.key(t.ID), data, c.ttl).Err(); err != nil {
		atomic.AddUint64(&c.stats.Errors, 1)
		return fmt.Errorf("cache set error: %w", err)
	}
	atomic.AddUint64(&c.stats.Sets, 1)
	return nil
}

// Invalidate deletes the keys for ids.
func (c *Cache) Invalidate(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, c.key(id))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		atomic.AddUint64(&c.stats.Errors, 1)
		return fmt.Errorf("cache delete error: %w", err)
	}
	atomic.AddUint64(&c.stats.Deletes, uint64(len(keys)))
	return nil
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:    atomic.LoadUint64(&c.stats.Hits),
		Misses:  atomic.LoadUint64(&c.stats.Misses),
		Sets:    atomic.LoadUint64(&c.stats.Sets),
		Deletes: atomic.LoadUint64(&c.stats.Deletes),
		Errors:  atomic.LoadUint64(&c.stats.Errors),
	}
}

// Ping reports whether redis still answers. Serve mode uses it as a readiness check.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) key(id string) string {
	return c.prefix + id
}
