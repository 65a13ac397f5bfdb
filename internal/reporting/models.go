package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// OutcomesSummaryRequest requests aggregated voicemail outcomes.
// Source optionally narrows to one channel (mail, orphan, conversation).
type OutcomesSummaryRequest struct {
	Range  TimeRange `json:"range"`
	Source string    `json:"source,omitempty"`
}

type OutcomesSummary struct {
	Range  TimeRange `json:"range"`
	Source string    `json:"source,omitempty"`

	Total int `json:"total"`

	SupportTickets int `json:"support_tickets"`
	SalesLeads     int `json:"sales_leads"`
	Waitlist       int `json:"waitlist"`

	Persisted int `json:"persisted"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`

	// Orphans were routed without a transcription.
	Orphans int `json:"orphans"`

	BySource map[string]int `json:"by_source"`

	// CoverageRate is the share of address-checked connection requests
	// that could be served: sales leads over sales leads plus waitlist.
	CoverageRate float64 `json:"coverage_rate"`
	// DeliveryRate is the share of outcomes that reached the CRM.
	DeliveryRate float64 `json:"delivery_rate"`
}

// FailedOutcome is a ledger entry still waiting for the CRM.
type FailedOutcome struct {
	Key          string    `json:"key"`
	Kind         string    `json:"kind"`
	Source       string    `json:"source,omitempty"`
	CallerNumber string    `json:"caller_number,omitempty"`
	Attempts     int       `json:"attempts"`
	LastError    string    `json:"last_error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
