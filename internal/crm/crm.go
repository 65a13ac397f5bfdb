// Package crm is the boundary to the CRM and ticketing system.
package crm

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("crm: not found")

type LeadFields struct {
	Title        string   `json:"title"`
	Phone        string   `json:"phone"`
	Address      string   `json:"address,omitempty"`
	Comment      string   `json:"comment,omitempty"`
	Source       string   `json:"source"`
	Tags         []string `json:"tags,omitempty"`
	RecordingURL string   `json:"recording_url,omitempty"`
}

type TicketFields struct {
	Subject      string `json:"subject"`
	Description  string `json:"description"`
	Phone        string `json:"phone"`
	Priority     string `json:"priority,omitempty"`
	RecordingURL string `json:"recording_url,omitempty"`
}

type Customer struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Phone   string  `json:"phone"`
	Tariff  string  `json:"tariff,omitempty"`
	Balance float64 `json:"balance"`
}

// Gateway creates CRM artefacts. Create calls carry an idempotency key:
// repeating a call with the same key must not create a second record.
type Gateway interface {
	CreateLead(ctx context.Context, key string, f LeadFields) (leadID string, err error)
	CreateTicket(ctx context.Context, key string, f TicketFields) (ticketNumber string, err error)
	CreateTask(ctx context.Context, key, leadID string, dueAt time.Time, text string) (taskID string, err error)
	AddNote(ctx context.Context, entityID, text string) (bool, error)
	FindCustomerByPhone(ctx context.Context, phone string) (Customer, error)
}
