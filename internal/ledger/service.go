// Package ledger guarantees that every correlated call produces exactly one
// outcome and that outcomes the CRM rejected are not forgotten.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAlreadyClaimed = errors.New("ledger: key already claimed")
	ErrNotFound       = errors.New("ledger: not found")
	ErrInvalidEntry   = errors.New("ledger: invalid entry")
)

// Repository is the persistence contract for ledger entries.
type Repository interface {
	// Claim inserts e unless its key exists, in which case it returns
	// ErrAlreadyClaimed.
	Claim(ctx context.Context, e Entry) error
	Complete(ctx context.Context, key, kind, externalID, outcome string, now time.Time) error
	// Fail marks the entry failed, stores outcome and increments Attempts.
	Fail(ctx context.Context, key, kind, outcome, lastError string, now time.Time) error
	Get(ctx context.Context, key string) (Entry, error)
	// ListRetryable returns failed entries with fewer than maxAttempts
	// attempts, and claimed entries not touched since staleBefore.
	ListRetryable(ctx context.Context, staleBefore time.Time, maxAttempts, limit int) ([]Entry, error)
	ListFailed(ctx context.Context, limit int) ([]Entry, error)
	List(ctx context.Context, from, to time.Time) ([]Entry, error)
}

// Service stamps ids and times on ledger entries.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// WithClock replaces the clock. Intended for tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Claim reserves key for one outcome. input is stored as JSON.
func (s *Service) Claim(ctx context.Context, key, source, callerNumber string, input any) error {
	if s.repo == nil {
		return errors.New("ledger: repository not configured")
	}
	if key == "" {
		return ErrInvalidEntry
	}
	raw, err := encode(input)
	if err != nil {
		return err
	}
	now := s.clock().UTC()
	return s.repo.Claim(ctx, Entry{
		ID:           uuid.NewString(),
		Key:          key,
		Status:       StatusClaimed,
		Source:       source,
		CallerNumber: callerNumber,
		Input:        raw,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

// Complete records that the outcome for key reached the CRM.
func (s *Service) Complete(ctx context.Context, key, kind, externalID string, outcome any) error {
	raw, err := encode(outcome)
	if err != nil {
		return err
	}
	return s.repo.Complete(ctx, key, kind, externalID, raw, s.clock().UTC())
}

// Fail records that persisting the outcome for key failed with cause.
func (s *Service) Fail(ctx context.Context, key, kind string, outcome any, cause error) error {
	raw, err := encode(outcome)
	if err != nil {
		return err
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.repo.Fail(ctx, key, kind, raw, msg, s.clock().UTC())
}

func (s *Service) Get(ctx context.Context, key string) (Entry, error) {
	return s.repo.Get(ctx, key)
}

// Exists reports whether key has been claimed.
func (s *Service) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.repo.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Retryable lists entries that RetryFailed should pick up.
func (s *Service) Retryable(ctx context.Context, staleAfter time.Duration, maxAttempts, limit int) ([]Entry, error) {
	return s.repo.ListRetryable(ctx, s.clock().UTC().Add(-staleAfter), maxAttempts, limit)
}

func (s *Service) Failed(ctx context.Context, limit int) ([]Entry, error) {
	return s.repo.ListFailed(ctx, limit)
}

// CountFailed reports how many outcomes are in the failed state.
func (s *Service) CountFailed(ctx context.Context) (int, error) {
	failed, err := s.repo.ListFailed(ctx, 0)
	return len(failed), err
}

func (s *Service) Between(ctx context.Context, from, to time.Time) ([]Entry, error) {
	return s.repo.List(ctx, from, to)
}

func encode(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case json.RawMessage:
		return string(t), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("ledger: encode: %w", err)
	}
	return string(b), nil
}
