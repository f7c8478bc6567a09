package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func TestRedisLimiter_FixedWindow(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedisLimiter(client, "rl:login:", 3, time.Minute)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		ok, err := l.Allow(ctx, "10.0.0.1")
		if err != nil {
			t.Fatalf("Allow #%d: %v", i, err)
		}
		if !ok {
			t.Fatalf("Allow #%d should pass", i)
		}
	}
	ok, err := l.Allow(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if ok {
		t.Fatal("4th request in window should be limited")
	}
	if ok, _ := l.Allow(ctx, "10.0.0.2"); !ok {
		t.Error("other keys have their own budget")
	}
	if ttl := mr.TTL("rl:login:10.0.0.1"); ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL = %v, want within window", ttl)
	}

	mr.FastForward(time.Minute + time.Second)
	if ok, _ := l.Allow(ctx, "10.0.0.1"); !ok {
		t.Error("new window should reset the budget")
	}
}

func TestRedisLimiter_Unavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedisLimiter(client, "rl:", 3, time.Minute)
	mr.Close()

	_, err := l.Allow(context.Background(), "k")
	if !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("want ErrRedisUnavailable, got %v", err)
	}
}

func TestMemoryLimiter_Burst(t *testing.T) {
	l := NewMemoryLimiter(2, time.Minute)
	now := time.Now()
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if ok, _ := l.Allow(ctx, "ip"); !ok {
			t.Fatalf("request %d should pass", i)
		}
	}
	if ok, _ := l.Allow(ctx, "ip"); ok {
		t.Fatal("burst exhausted; request should be limited")
	}

	now = now.Add(31 * time.Second)
	if ok, _ := l.Allow(ctx, "ip"); !ok {
		t.Error("one token should refill after window/max")
	}
}

func TestMemoryLimiter_PrunesIdle(t *testing.T) {
	l := NewMemoryLimiter(1, time.Second)
	now := time.Now()
	l.now = func() time.Time { return now }
	ctx := context.Background()

	l.Allow(ctx, "a")
	now = now.Add(time.Minute)
	l.Allow(ctx, "b")
	if _, ok := l.buckets["a"]; ok {
		t.Error("idle bucket should be pruned")
	}
}

func TestNoop(t *testing.T) {
	if ok, err := (Noop{}).Allow(context.Background(), "x"); !ok || err != nil {
		t.Errorf("Noop.Allow = %v, %v", ok, err)
	}
}
