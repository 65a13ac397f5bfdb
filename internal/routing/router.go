// Package routing turns correlated call data into exactly one CRM outcome:
// a support ticket, a sales lead with a follow-up task, or a waitlist entry.
package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"contact-automation/internal/address"
	"contact-automation/internal/classifier"
	"contact-automation/internal/coverage"
	"contact-automation/internal/crm"
	"contact-automation/internal/ledger"
	"contact-automation/internal/schedule"
)

// ErrDuplicate is returned when the outcome for a key was already claimed.
var ErrDuplicate = errors.New("routing: outcome already routed")

// Classifier is the subset of classifier.Classifier the router needs.
type Classifier interface {
	Classify(ctx context.Context, text, callerNumber string) (classifier.Result, error)
}

// Summarizer produces ticket subjects.
type Summarizer interface {
	Subject(ctx context.Context, text string) (string, error)
}

// Recorder receives pipeline events for metrics.
type Recorder interface {
	OutcomePersisted(kind, source string)
	LeadLost(kind string)
	Correlated(strategy string)
	ClassifierDegraded(reason string)
	RetryAttempt(ok bool)
	OrphanRouted()
	DuplicateSuppressed()
}

// NopRecorder discards all events.
type NopRecorder struct{}

func (NopRecorder) OutcomePersisted(string, string) {}
func (NopRecorder) LeadLost(string)                 {}
func (NopRecorder) Correlated(string)               {}
func (NopRecorder) ClassifierDegraded(string)       {}
func (NopRecorder) RetryAttempt(bool)               {}
func (NopRecorder) OrphanRouted()                   {}
func (NopRecorder) DuplicateSuppressed()            {}

// Router runs Received -> Classified -> (CoverageChecked) -> Routed -> Persisted.
type Router struct {
	Classifier Classifier
	Summarizer Summarizer
	Coverage   coverage.Checker
	CRM        crm.Gateway
	Ledger     *ledger.Service
	Window     schedule.Window
	Metrics    Recorder
	Log        *slog.Logger

	// MaxAttempts bounds CRM replays of one failed outcome.
	MaxAttempts int
	// StaleAfter is how long a claimed but unfinished entry waits before
	// RetryFailed routes it again.
	StaleAfter time.Duration

	Now func() time.Time
}

// Route classifies in and persists its outcome. A key that was already
// routed yields ErrDuplicate and no CRM write. CRM failures are recorded
// in the ledger for RetryFailed and returned; the Outcome is returned in
// every non-duplicate case.
func (r *Router) Route(ctx context.Context, in Input) (Outcome, error) {
	if in.Key == "" {
		return Outcome{}, errors.New("routing: key required")
	}
	log := r.log().With("key", in.Key, "entry_id", in.Token, "caller", in.CallerNumber, "source", in.Source)

	ledgerOK := true
	if err := r.Ledger.Claim(ctx, in.Key, in.Source, in.CallerNumber, in); err != nil {
		if errors.Is(err, ledger.ErrAlreadyClaimed) {
			r.metrics().DuplicateSuppressed()
			log.Info("outcome already routed, skipping")
			return Outcome{}, ErrDuplicate
		}
		// Losing the dedupe guarantee is better than losing the lead.
		ledgerOK = false
		log.Error("ledger claim failed, routing without it", "err", err)
	}

	out := r.decide(ctx, in, log)
	log = log.With("action", out.Action, "reason", out.Reason)

	if err := r.persist(ctx, &out); err != nil {
		r.metrics().LeadLost(string(out.Action))
		log.Error("crm write failed, outcome queued for retry", "err", err)
		if ledgerOK {
			if ferr := r.Ledger.Fail(ctx, out.Key, string(out.Action), out, err); ferr != nil {
				log.Error("recording failed outcome in ledger failed", "err", ferr, "outcome", out)
			}
		}
		return out, err
	}

	r.metrics().OutcomePersisted(string(out.Action), out.Source)
	log.Info("outcome persisted", "external_id", out.ExternalID())
	if ledgerOK {
		if err := r.Ledger.Complete(ctx, out.Key, string(out.Action), out.ExternalID(), out); err != nil {
			log.Warn("completing ledger entry failed", "err", err)
		}
	}
	return out, nil
}

// decide runs classification, address normalization and the coverage
// check. It never fails: every collaborator error degrades to a default.
func (r *Router) decide(ctx context.Context, in Input, log *slog.Logger) Outcome {
	out := Outcome{
		Key:             in.Key,
		Source:          in.Source,
		CallerNumber:    in.CallerNumber,
		Transcription:   in.Transcription,
		RecordingURL:    in.RecordingURL,
		DurationSeconds: in.DurationSeconds,
		PressedKey:      in.PressedKey,
	}

	res, err := r.Classifier.Classify(ctx, in.Transcription, in.CallerNumber)
	switch {
	case err != nil:
		reason := "unavailable"
		if errors.Is(err, classifier.ErrMalformed) {
			reason = "malformed"
		}
		r.metrics().ClassifierDegraded(reason)
		log.Warn("classification degraded to default", "reason", reason, "err", err)
		res = classifier.Default()
	case in.Transcription == "":
		r.metrics().ClassifierDegraded("no_transcription")
	}
	out.Classification = res
	out.Address = res.Address

	var cov coverage.Result
	var covErr error
	if NeedsCoverage(res) {
		out.Address = address.Normalize(res.Address)
		if r.Coverage == nil {
			covErr = errors.New("coverage checker not configured")
		} else {
			cov, covErr = r.Coverage.Check(ctx, out.Address)
		}
		if covErr != nil {
			log.Warn("coverage check failed, routing as sales lead", "address", out.Address, "err", covErr)
		}
		out.FullAddress = cov.FullAddress
	}

	d := Decide(res, cov, covErr)
	out.Action, out.Reason = d.Action, d.Reason

	switch out.Action {
	case ActionSupportTicket:
		subject := classifier.GenericSubject
		if r.Summarizer != nil {
			s, err := r.Summarizer.Subject(ctx, in.Transcription)
			if err != nil {
				log.Warn("ticket subject summarization failed", "err", err)
			}
			subject = s
		}
		out.Subject = subject
	case ActionSalesLead:
		due := r.Window.FollowUpAt(r.now())
		out.FollowUpAt = &due
	}
	return out
}

// persist writes out's CRM artefacts, skipping the ones already created.
// Every create call is keyed so a replay after a partial failure is safe.
func (r *Router) persist(ctx context.Context, out *Outcome) error {
	switch out.Action {
	case ActionSupportTicket:
		if out.TicketNumber != "" {
			return nil
		}
		n, err := r.CRM.CreateTicket(ctx, out.Key, crm.TicketFields{
			Subject:      nonEmpty(out.Subject, classifier.GenericSubject),
			Description:  out.description(),
			Phone:        out.CallerNumber,
			Priority:     "normal",
			RecordingURL: out.RecordingURL,
		})
		if err != nil {
			return fmt.Errorf("create ticket: %w", err)
		}
		out.TicketNumber = n
		return nil

	case ActionSalesLead:
		if err := r.ensureLead(ctx, out, nil); err != nil {
			return err
		}
		if out.TaskID != "" || out.FollowUpAt == nil {
			return nil
		}
		id, err := r.CRM.CreateTask(ctx, out.Key+":task", out.LeadID, *out.FollowUpAt, "Перезвонить клиенту по заявке с автоответчика")
		if err != nil {
			return fmt.Errorf("create follow-up task: %w", err)
		}
		out.TaskID = id
		return nil

	case ActionWaitlist:
		if err := r.ensureLead(ctx, out, []string{"waitlist"}); err != nil {
			return err
		}
		if out.NoteAdded {
			return nil
		}
		note := "Адрес вне зоны покрытия: " + nonEmpty(out.FullAddress, out.Address)
		ok, err := r.CRM.AddNote(ctx, out.LeadID, note)
		if err != nil {
			return fmt.Errorf("add waitlist note: %w", err)
		}
		if !ok {
			return errors.New("add waitlist note: rejected")
		}
		out.NoteAdded = true
		return nil
	}
	return fmt.Errorf("routing: unknown action %q", out.Action)
}

func (r *Router) ensureLead(ctx context.Context, out *Outcome, tags []string) error {
	if out.LeadID != "" {
		return nil
	}
	id, err := r.CRM.CreateLead(ctx, out.Key, crm.LeadFields{
		Title:        out.leadTitle(),
		Phone:        out.CallerNumber,
		Address:      nonEmpty(out.FullAddress, out.Address),
		Comment:      out.description(),
		Source:       "voicemail",
		Tags:         tags,
		RecordingURL: out.RecordingURL,
	})
	if err != nil {
		return fmt.Errorf("create lead: %w", err)
	}
	out.LeadID = id
	return nil
}

// AttachLateTranscription adds text as a note to the CRM record of the
// outcome under key, if that outcome was routed by the orphan sweep and so
// carries no transcription. It reports whether a note was added.
func (r *Router) AttachLateTranscription(ctx context.Context, key, text string) (bool, error) {
	if strings.TrimSpace(text) == "" {
		return false, nil
	}
	e, err := r.Ledger.Get(ctx, key)
	if errors.Is(err, ledger.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ledger get: %w", err)
	}
	if e.Source != SourceOrphan || e.ExternalID == "" {
		return false, nil
	}
	ok, err := r.CRM.AddNote(ctx, e.ExternalID, lateTranscriptionNote+text)
	if err != nil {
		return false, fmt.Errorf("add transcription note: %w", err)
	}
	return ok, nil
}

const lateTranscriptionNote = "Расшифровка голосового сообщения: "

// RetryFailed replays failed outcomes and re-routes claims that never
// finished. It returns how many entries reached the CRM.
func (r *Router) RetryFailed(ctx context.Context) (int, error) {
	entries, err := r.Ledger.Retryable(ctx, r.staleAfter(), r.maxAttempts(), 50)
	if err != nil {
		return 0, fmt.Errorf("list retryable: %w", err)
	}

	done := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		log := r.log().With("key", e.Key, "attempts", e.Attempts, "status", e.Status)

		out, err := r.replayable(ctx, e, log)
		if err != nil {
			log.Error("ledger entry cannot be replayed", "err", err)
			if ferr := r.Ledger.Fail(ctx, e.Key, e.Kind, nil, err); ferr != nil {
				log.Error("recording replay failure failed", "err", ferr)
			}
			r.metrics().RetryAttempt(false)
			continue
		}

		if err := r.persist(ctx, &out); err != nil {
			r.metrics().RetryAttempt(false)
			log.Warn("retry failed", "err", err)
			if ferr := r.Ledger.Fail(ctx, e.Key, string(out.Action), out, err); ferr != nil {
				log.Error("recording retry failure failed", "err", ferr)
			}
			continue
		}

		r.metrics().RetryAttempt(true)
		r.metrics().OutcomePersisted(string(out.Action), out.Source)
		if err := r.Ledger.Complete(ctx, e.Key, string(out.Action), out.ExternalID(), out); err != nil {
			log.Warn("completing ledger entry failed", "err", err)
		}
		log.Info("outcome persisted on retry", "external_id", out.ExternalID())
		done++
	}
	return done, nil
}

// replayable rebuilds the outcome of a ledger entry: failed entries carry
// it, stale claims carry the input to decide it again.
func (r *Router) replayable(ctx context.Context, e ledger.Entry, log *slog.Logger) (Outcome, error) {
	if e.Outcome != "" {
		var out Outcome
		if err := json.Unmarshal([]byte(e.Outcome), &out); err != nil {
			return Outcome{}, fmt.Errorf("decode outcome: %w", err)
		}
		return out, nil
	}
	if e.Input == "" {
		return Outcome{}, errors.New("entry has neither outcome nor input")
	}
	var in Input
	if err := json.Unmarshal([]byte(e.Input), &in); err != nil {
		return Outcome{}, fmt.Errorf("decode input: %w", err)
	}
	in.Key = e.Key
	return r.decide(ctx, in, log), nil
}

func (r *Router) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Router) log() *slog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return slog.Default()
}

func (r *Router) metrics() Recorder {
	if r.Metrics != nil {
		return r.Metrics
	}
	return NopRecorder{}
}

func (r *Router) maxAttempts() int {
	if r.MaxAttempts > 0 {
		return r.MaxAttempts
	}
	return 5
}

func (r *Router) staleAfter() time.Duration {
	if r.StaleAfter > 0 {
		return r.StaleAfter
	}
	return 10 * time.Minute
}
