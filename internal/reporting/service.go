package reporting

import (
	"context"
	"errors"
	"time"

	"contact-automation/internal/ledger"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting. The outcome ledger is
// the immutable source: every routed call has exactly one entry.
type Repository interface {
	Between(ctx context.Context, from, to time.Time) ([]ledger.Entry, error)
	Failed(ctx context.Context, limit int) ([]ledger.Entry, error)
}

// Outcome kinds as recorded in the ledger.
const (
	KindSupportTicket = "support_ticket"
	KindSalesLead     = "sales_lead"
	KindWaitlist      = "waitlist"

	sourceOrphan = "orphan"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) OutcomesSummary(ctx context.Context, req OutcomesSummaryRequest) (OutcomesSummary, error) {
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return OutcomesSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return OutcomesSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.Between(ctx, req.Range.From, req.Range.To)
	if err != nil {
		return OutcomesSummary{}, err
	}

	out := OutcomesSummary{Range: req.Range, Source: req.Source, BySource: map[string]int{}}
	for _, e := range rows {
		if req.Source != "" && e.Source != req.Source {
			continue
		}
		out.Total++
		out.BySource[e.Source]++
		if e.Source == sourceOrphan {
			out.Orphans++
		}
		switch e.Kind {
		case KindSupportTicket:
			out.SupportTickets++
		case KindSalesLead:
			out.SalesLeads++
		case KindWaitlist:
			out.Waitlist++
		}
		switch e.Status {
		case ledger.StatusPersisted:
			out.Persisted++
		case ledger.StatusFailed:
			out.Failed++
		case ledger.StatusClaimed:
			out.Pending++
		}
	}
	if checked := out.SalesLeads + out.Waitlist; checked > 0 {
		out.CoverageRate = float64(out.SalesLeads) / float64(checked)
	}
	if out.Total > 0 {
		out.DeliveryRate = float64(out.Persisted) / float64(out.Total)
	}
	return out, nil
}

// FailedOutcomes lists outcomes that have not reached the CRM yet.
func (s *Service) FailedOutcomes(ctx context.Context, limit int) ([]FailedOutcome, error) {
	if s.repo == nil {
		return nil, errors.New("reporting: repository not configured")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.repo.Failed(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]FailedOutcome, 0, len(rows))
	for _, e := range rows {
		out = append(out, FailedOutcome{
			Key:          e.Key,
			Kind:         e.Kind,
			Source:       e.Source,
			CallerNumber: e.CallerNumber,
			Attempts:     e.Attempts,
			LastError:    e.LastError,
			CreatedAt:    e.CreatedAt,
			UpdatedAt:    e.UpdatedAt,
		})
	}
	return out, nil
}
