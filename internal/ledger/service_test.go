package ledger

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestService_ClaimIsExclusive(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.Claim(context.Background(), "entry:T1", "mail", "+79000000001", map[string]string{"a": "b"}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	err := svc.Claim(context.Background(), "entry:T1", "sweep", "+79000000001", nil)
	if !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed, got %v", err)
	}

	e, err := svc.Get(context.Background(), "entry:T1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if e.Source != "mail" || e.Input != `{"a":"b"}` || e.ID == "" {
		t.Fatalf("unexpected entry: %+v", e)
	}
}

func TestService_ClaimRequiresKey(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	if err := svc.Claim(context.Background(), "", "mail", "", nil); !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("expected ErrInvalidEntry, got %v", err)
	}
}

func TestService_FailThenComplete(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	svc := NewService(repo)

	_ = svc.Claim(ctx, "k", "mail", "", nil)
	if err := svc.Fail(ctx, "k", "sales_lead", map[string]int{"x": 1}, errors.New("crm down")); err != nil {
		t.Fatalf("fail: %v", err)
	}
	_ = svc.Fail(ctx, "k", "sales_lead", nil, errors.New("crm down again"))

	e, _ := svc.Get(ctx, "k")
	if e.Status != StatusFailed || e.Attempts != 2 || e.Outcome != `{"x":1}` || e.LastError != "crm down again" {
		t.Fatalf("unexpected failed entry: %+v", e)
	}

	if err := svc.Complete(ctx, "k", "sales_lead", "L-1", map[string]int{"x": 1}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	e, _ = svc.Get(ctx, "k")
	if e.Status != StatusPersisted || e.ExternalID != "L-1" || e.LastError != "" {
		t.Fatalf("unexpected persisted entry: %+v", e)
	}
}

func TestService_Retryable(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)
	repo := NewMemoryRepo()
	svc := NewService(repo).WithClock(func() time.Time { return now })

	_ = svc.Claim(ctx, "stale", "mail", "", nil)
	_ = svc.Claim(ctx, "failed", "mail", "", nil)
	_ = svc.Fail(ctx, "failed", "waitlist", "{}", errors.New("x"))
	_ = svc.Claim(ctx, "exhausted", "mail", "", nil)
	for i := 0; i < 3; i++ {
		_ = svc.Fail(ctx, "exhausted", "waitlist", "{}", errors.New("x"))
	}
	now = now.Add(20 * time.Minute)
	_ = svc.Claim(ctx, "fresh", "mail", "", nil)

	got, err := svc.Retryable(ctx, 10*time.Minute, 3, 0)
	if err != nil {
		t.Fatalf("retryable: %v", err)
	}
	keys := map[string]bool{}
	for _, e := range got {
		keys[e.Key] = true
	}
	if len(got) != 2 || !keys["stale"] || !keys["failed"] {
		t.Fatalf("unexpected retryable set: %+v", keys)
	}
}
