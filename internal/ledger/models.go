package ledger

import "time"

// Entry records the fate of one outcome, keyed by its idempotency key.
//
// Invariants:
// - Key is unique; the first Claim wins and later claims are rejected.
// - Input holds what is needed to route again after a crash.
// - Outcome holds what is needed to persist again after a CRM failure.
//
// Storage (Postgres): table outcome_ledger, see Schema.
type Entry struct {
	ID           string    `json:"id" db:"id"`
	Key          string    `json:"key" db:"key"`
	Kind         string    `json:"kind,omitempty" db:"kind"`
	Status       Status    `json:"status" db:"status"`
	Source       string    `json:"source,omitempty" db:"source"`
	CallerNumber string    `json:"caller_number,omitempty" db:"caller_number"`
	ExternalID   string    `json:"external_id,omitempty" db:"external_id"`
	Input        string    `json:"input,omitempty" db:"input"`
	Outcome      string    `json:"outcome,omitempty" db:"outcome"`
	Attempts     int       `json:"attempts" db:"attempts"`
	LastError    string    `json:"last_error,omitempty" db:"last_error"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusClaimed   Status = "claimed"
	StatusPersisted Status = "persisted"
	StatusFailed    Status = "failed"
)
