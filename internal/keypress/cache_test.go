package keypress

import (
	"context"
	"errors"
	"testing"
	"time"
)

type failingStore struct{}

func (failingStore) Set(context.Context, string, string, time.Duration) error {
	return errors.New("down")
}
func (failingStore) Take(context.Context, string) (string, bool, error) {
	return "", false, errors.New("down")
}

func TestConsume_IsDestructive(t *testing.T) {
	ctx := context.Background()
	c := NewCache(NewMemoryStore(), "0", time.Minute, nil)

	if err := c.Record(ctx, "T1", "2"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if got := c.Consume(ctx, "T1"); got != "2" {
		t.Fatalf("first consume: expected 2, got %q", got)
	}
	if got := c.Consume(ctx, "T1"); got != "0" {
		t.Fatalf("second consume: expected default, got %q", got)
	}
}

func TestRecord_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	c := NewCache(NewMemoryStore(), "0", time.Minute, nil)
	_ = c.Record(ctx, "T1", "1")
	_ = c.Record(ctx, "T1", "#")
	if got := c.Consume(ctx, "T1"); got != "#" {
		t.Fatalf("expected #, got %q", got)
	}
}

func TestRecord_RejectsInvalidDigit(t *testing.T) {
	c := NewCache(NewMemoryStore(), "0", time.Minute, nil)
	for _, d := range []string{"", "12", "a", "+"} {
		if err := c.Record(context.Background(), "T1", d); !errors.Is(err, ErrInvalidDigit) {
			t.Fatalf("digit %q: expected ErrInvalidDigit, got %v", d, err)
		}
	}
}

func TestConsume_Expired(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	c := NewCache(s, "0", time.Minute, nil)

	_ = c.Record(ctx, "T1", "5")
	now = now.Add(2 * time.Minute)
	if got := c.Consume(ctx, "T1"); got != "0" {
		t.Fatalf("expected default after expiry, got %q", got)
	}
}

func TestConsume_StoreErrorFallsBack(t *testing.T) {
	c := NewCache(failingStore{}, "9", time.Minute, nil)
	if got := c.Consume(context.Background(), "T1"); got != "9" {
		t.Fatalf("expected default on store error, got %q", got)
	}
}

func TestConsume_UnknownToken(t *testing.T) {
	c := NewCache(NewMemoryStore(), "0", time.Minute, nil)
	if got := c.Consume(context.Background(), "nope"); got != "0" {
		t.Fatalf("expected default, got %q", got)
	}
}
