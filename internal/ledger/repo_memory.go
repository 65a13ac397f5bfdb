package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo keeps the ledger in process memory. Used when no database is
// configured and in tests; entries are lost on restart.
type MemoryRepo struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{entries: map[string]Entry{}} }

func (r *MemoryRepo) Claim(_ context.Context, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[e.Key]; ok {
		return ErrAlreadyClaimed
	}
	r.entries[e.Key] = e
	return nil
}

func (r *MemoryRepo) Complete(_ context.Context, key, kind, externalID, outcome string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		return ErrNotFound
	}
	e.Status = StatusPersisted
	e.Kind = kind
	e.ExternalID = externalID
	e.Outcome = outcome
	e.LastError = ""
	e.UpdatedAt = now
	r.entries[key] = e
	return nil
}

func (r *MemoryRepo) Fail(_ context.Context, key, kind, outcome, lastError string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		return ErrNotFound
	}
	e.Status = StatusFailed
	e.Kind = kind
	if outcome != "" {
		e.Outcome = outcome
	}
	e.Attempts++
	e.LastError = lastError
	e.UpdatedAt = now
	r.entries[key] = e
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, key string) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (r *MemoryRepo) ListRetryable(_ context.Context, staleBefore time.Time, maxAttempts, limit int) ([]Entry, error) {
	return r.filter(limit, func(e Entry) bool {
		switch e.Status {
		case StatusFailed:
			return e.Attempts < maxAttempts
		case StatusClaimed:
			return e.UpdatedAt.Before(staleBefore)
		}
		return false
	}), nil
}

func (r *MemoryRepo) ListFailed(_ context.Context, limit int) ([]Entry, error) {
	return r.filter(limit, func(e Entry) bool { return e.Status == StatusFailed }), nil
}

func (r *MemoryRepo) List(_ context.Context, from, to time.Time) ([]Entry, error) {
	return r.filter(0, func(e Entry) bool {
		return !e.CreatedAt.Before(from) && e.CreatedAt.Before(to)
	}), nil
}

// Entries returns all entries ordered by creation time.
func (r *MemoryRepo) Entries() []Entry {
	return r.filter(0, func(Entry) bool { return true })
}

func (r *MemoryRepo) filter(limit int, keep func(Entry) bool) []Entry {
	r.mu.Lock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Key < out[j].Key
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
