package routing

import (
	"contact-automation/internal/classifier"
	"contact-automation/internal/coverage"
)

// Decision is the pure routing verdict for one classified transcription.
// It carries no CRM identifiers; persisting it is the Router's job.
type Decision struct {
	Action Action `json:"action"`

	// Reason is intended for internal logs/metrics.
	Reason string `json:"reason,omitempty"`
}

type Action string

const (
	ActionSupportTicket Action = "support_ticket"
	ActionSalesLead     Action = "sales_lead"
	ActionWaitlist      Action = "waitlist"
)

// NeedsCoverage reports whether the coverage service must be consulted
// before deciding. Only confident connection requests carry an address
// worth checking.
func NeedsCoverage(res classifier.Result) bool {
	return res.Intent == classifier.IntentConnection && res.Confidence == classifier.ConfidenceHigh
}

// Decide maps a classification and, for confident connection requests,
// the coverage answer to exactly one outcome.
//
// Priority:
//  1. support request: ticket, coverage is never consulted
//  2. low-confidence connection request: sales lead, address fixed by a human
//  3. coverage lookup failed: sales lead, never dropped
//  4. covered: sales lead
//  5. not covered: waitlist
func Decide(res classifier.Result, cov coverage.Result, covErr error) Decision {
	if res.Intent == classifier.IntentSupport {
		return Decision{Action: ActionSupportTicket, Reason: "support_request"}
	}
	if !NeedsCoverage(res) {
		return Decision{Action: ActionSalesLead, Reason: "low_confidence"}
	}
	if covErr != nil {
		return Decision{Action: ActionSalesLead, Reason: "coverage_unavailable"}
	}
	if cov.Available {
		return Decision{Action: ActionSalesLead, Reason: "covered"}
	}
	return Decision{Action: ActionWaitlist, Reason: "not_covered"}
}
