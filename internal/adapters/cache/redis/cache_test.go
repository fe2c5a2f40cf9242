package redis

import (
	"context"
	"testing"
	"time"

	"github.com/hylla/worktally/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// testRedisAddr requires Redis running on localhost:6379; tests skip otherwise.
const testRedisAddr = "localhost:6379"

func setupTestCache(t *testing.T) *Cache {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{Addr: testRedisAddr})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Redis not available at %s: %v", testRedisAddr, err)
	}
	prefix := "worktally-test:" + t.Name() + ":"
	c := New(client, prefix, time.Minute)
	t.Cleanup(func() {
		_ = c.Invalidate(ctx, "t1")
		_ = c.Close()
	})
	return c
}

func TestCacheRoundTrip(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	in := domain.Trackable{
		ID:        "t1",
		Kind:      domain.TrackableKindBug,
		Title:     "Crash",
		WorkState: domain.WorkStateWorking,
		Work:      domain.Stopwatch{StartedAt: &started, TotalSeconds: 42},
		Version:   3,
	}

	if _, ok, err := c.Get(ctx, "t1"); err != nil || ok {
		t.Fatalf("expected initial miss, got ok=%v err=%v", ok, err)
	}
	if err := c.Set(ctx, in); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, ok, err := c.Get(ctx, "t1")
	if err != nil || !ok {
		t.Fatalf("Get() ok=%v err=%v", ok, err)
	}
	if got.Work.TotalSeconds != 42 || got.Work.StartedAt == nil || !got.Work.StartedAt.Equal(started) || got.Version != 3 {
		t.Fatalf("unexpected round trip %#v", got)
	}
	if err := c.Invalidate(ctx, "t1"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if _, ok, _ := c.Get(ctx, "t1"); ok {
		t.Fatal("expected miss after invalidate")
	}
	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 2 || stats.Sets != 1 {
		t.Fatalf("unexpected stats %#v", stats)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Addr != testRedisAddr || cfg.TTL != 5*time.Minute || cfg.Prefix == "" {
		t.Fatalf("unexpected default config %#v", cfg)
	}
}

func TestConfigWithDefaultsFillsBlankFields(t *testing.T) {
	got := Config{DB: 2, TTL: time.Second}.withDefaults()
	if got.Addr != testRedisAddr || got.Prefix != "worktally:trackable:" || got.DB != 2 || got.TTL != time.Second {
		t.Fatalf("unexpected config %#v", got)
	}
	kept := Config{Addr: "cache:6379", Prefix: "team:"}.withDefaults()
	if kept.Addr != "cache:6379" || kept.Prefix != "team:" {
		t.Fatalf("explicit fields overwritten %#v", kept)
	}
}

func TestDialUnreachableFails(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := Dial(ctx, Config{Addr: "127.0.0.1:1"}); err == nil {
		t.Fatal("expected dial error for closed port")
	}
}

func TestPingHealthyConnection(t *testing.T) {
	c := setupTestCache(t)
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}
