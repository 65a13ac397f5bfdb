package audit

import "time"

// Event is an immutable, append-only record of an operator action that
// changes pipeline state, such as a manual ledger replay.
//
// Invariants:
// - Events are never updated or deleted.
// - operator_id is required.
// - audit is best-effort; do not block the action on audit failures.
type Event struct {
	ID   string    `json:"id" db:"id"`
	Type EventType `json:"type" db:"type"`

	OperatorID string `json:"operator_id" db:"operator_id"`
	Role       string `json:"role,omitempty" db:"role"`

	// IPAddress is the client IP as resolved by the HTTP layer.
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	// LedgerKey names the outcome acted on, if the action targets one.
	LedgerKey string `json:"ledger_key,omitempty" db:"ledger_key"`

	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeLedgerReplay EventType = "ledger_replay"
)
