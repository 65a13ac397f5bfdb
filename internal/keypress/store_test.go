package keypress

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb), mr
}

func TestRedisStore_TakeIsDestructive(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t)

	if err := s.Set(ctx, "T1", "2", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !mr.Exists("vm:dtmf:T1") {
		t.Fatalf("expected digit under vm:dtmf:T1")
	}
	digit, ok, err := s.Take(ctx, "T1")
	if err != nil || !ok || digit != "2" {
		t.Fatalf("first take: got %q ok=%v err=%v", digit, ok, err)
	}
	if _, ok, err := s.Take(ctx, "T1"); err != nil || ok {
		t.Fatalf("second take: expected nothing, ok=%v err=%v", ok, err)
	}
	if mr.Exists("vm:dtmf:T1") {
		t.Fatalf("take must delete the digit")
	}
}

func TestRedisStore_DigitExpires(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t)

	if err := s.Set(ctx, "T1", "5", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, ok, err := s.Take(ctx, "T1"); err != nil || ok {
		t.Fatalf("expected expired digit, ok=%v err=%v", ok, err)
	}
}

func TestRedisStore_BacksCache(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedisStore(t)
	c := NewCache(s, "0", time.Minute, nil)

	_ = c.Record(ctx, "T1", "1")
	_ = c.Record(ctx, "T1", "#")
	if got := c.Consume(ctx, "T1"); got != "#" {
		t.Fatalf("expected last digit, got %q", got)
	}
	if got := c.Consume(ctx, "T1"); got != "0" {
		t.Fatalf("expected default after consume, got %q", got)
	}
}

func TestMemoryStore_DigitExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }

	_ = s.Set(ctx, "T1", "5", time.Minute)
	_ = s.Set(ctx, "T2", "6", time.Hour)
	now = now.Add(2 * time.Minute)
	if _, ok, _ := s.Take(ctx, "T1"); ok {
		t.Fatalf("expected expired digit")
	}
	_ = s.Set(ctx, "T3", "7", time.Minute)
	if len(s.entries) != 2 {
		t.Fatalf("expected expired entries evicted, have %d", len(s.entries))
	}
}
