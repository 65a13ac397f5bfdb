package keypress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var ErrInvalidDigit = errors.New("invalid keypad digit")

// DefaultTTL bounds how long a digit waits for its call summary.
const DefaultTTL = 2 * time.Hour

// Cache records keypresses and hands each one out exactly once.
type Cache struct {
	store        Store
	defaultDigit string
	ttl          time.Duration
	log          *slog.Logger
}

func NewCache(store Store, defaultDigit string, ttl time.Duration, log *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Cache{store: store, defaultDigit: defaultDigit, ttl: ttl, log: log}
}

// Record stores digit for token, replacing any earlier one.
func (c *Cache) Record(ctx context.Context, token, digit string) error {
	if token == "" {
		return errors.New("token is required")
	}
	if !ValidDigit(digit) {
		return fmt.Errorf("%w: %q", ErrInvalidDigit, digit)
	}
	return c.store.Set(ctx, token, digit, c.ttl)
}

// Consume returns and deletes the digit recorded for token. A missing,
// expired or unreadable entry yields the configured default digit.
func (c *Cache) Consume(ctx context.Context, token string) string {
	if token == "" {
		return c.defaultDigit
	}
	d, ok, err := c.store.Take(ctx, token)
	if err != nil {
		c.log.Warn("keypress lookup failed, using default", "entry_id", token, "err", err)
		return c.defaultDigit
	}
	if !ok {
		return c.defaultDigit
	}
	return d
}

// Default returns the fallback digit.
func (c *Cache) Default() string { return c.defaultDigit }

// ValidDigit reports whether d is a single keypad symbol.
func ValidDigit(d string) bool {
	if len(d) != 1 {
		return false
	}
	return (d[0] >= '0' && d[0] <= '9') || d[0] == '*' || d[0] == '#'
}
