// Package voicemail bridges the gap between a call ending and its
// transcription arriving by mail: it keeps a snapshot of every finished
// call, keyed by the provider correlation token, and resolves the
// recording link in the background.
package voicemail

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// Snapshot is what is known about a finished call before its
// transcription shows up.
type Snapshot struct {
	Token           string    `json:"entry_id"`
	CallerNumber    string    `json:"caller_number"`
	RecordingURL    string    `json:"recording_url,omitempty"`
	DurationSeconds int       `json:"duration_seconds"`
	PressedKey      string    `json:"pressed_key"`
	CreatedAt       time.Time `json:"created_at"`
	// Resolved is set once an outcome has been routed for the token.
	Resolved bool `json:"resolved"`
}

// Store is a keyed TTL store of snapshots.
//
// Put overwrites the snapshot for its token (last write wins) but never
// clears Resolved. Get/Latest/FindByCaller return ok=false when nothing
// matches. The Update methods only apply to a token that is still stored,
// change a single field and report whether they did.
//
// Besides snapshots the store keeps two short-lived mail indexes, expiring
// with the same TTL: the outcome key each transcription message was routed
// under, and per caller the keys of messages that matched no snapshot.
type Store interface {
	Put(ctx context.Context, s Snapshot) error
	Get(ctx context.Context, token string) (Snapshot, bool, error)
	// Latest returns the most recently put snapshot. It may belong to a
	// different call than the one the caller has in mind.
	Latest(ctx context.Context) (Snapshot, bool, error)
	// FindByCaller returns the most recent snapshot for a normalized number.
	FindByCaller(ctx context.Context, number string) (Snapshot, bool, error)
	UpdateRecordingURL(ctx context.Context, token, url string) (bool, error)
	UpdatePressedKey(ctx context.Context, token, digit string) (bool, error)
	// Resolve marks the token as handled so TakeExpired skips it.
	Resolve(ctx context.Context, token string) error
	// TakeExpired removes and returns unresolved snapshots created at or
	// before the cutoff. Each snapshot is returned at most once.
	TakeExpired(ctx context.Context, cutoff time.Time) ([]Snapshot, error)

	// RememberMessage records the outcome key a message was routed under.
	RememberMessage(ctx context.Context, messageID, key string) error
	MessageKey(ctx context.Context, messageID string) (string, bool, error)
	// AddUnmatched notes that the message routed under key carried caller
	// but matched no snapshot.
	AddUnmatched(ctx context.Context, caller, key string, at time.Time) error
	// TakeUnmatched removes and returns the oldest unmatched key for caller
	// noted at or after since. Each key is returned at most once.
	TakeUnmatched(ctx context.Context, caller string, since time.Time) (string, bool, error)
}
