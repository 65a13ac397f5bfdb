package voicemail

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"contact-automation/internal/faults"
)

// RecordingRef points at a finished recording held by the provider.
type RecordingRef struct {
	ID              string    `json:"id"`
	URL             string    `json:"url"`
	DurationSeconds int       `json:"duration"`
	CreatedAt       time.Time `json:"created_at"`
}

// RecordingLister is the provider's recording listing. Recordings are
// returned in chronological order.
type RecordingLister interface {
	ListRecordings(ctx context.Context, token string) ([]RecordingRef, error)
}

// Resolver looks up the recording of a finished call once the provider has
// had time to process it.
type Resolver struct {
	Lister  RecordingLister
	Store   Store
	Grace   time.Duration
	Backoff time.Duration
	Log     *slog.Logger

	// Sleep waits d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Resolve waits the grace period, lists recordings for token and returns
// the last one. A transport failure is retried exactly once after the
// backoff. An empty listing yields ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, token string) (RecordingRef, error) {
	if err := r.sleep(ctx, r.Grace); err != nil {
		return RecordingRef{}, err
	}

	refs, err := r.Lister.ListRecordings(ctx, token)
	if err != nil && faults.IsTransport(err) {
		r.log().Info("recording lookup failed, retrying once", "entry_id", token, "err", err)
		if err := r.sleep(ctx, r.Backoff); err != nil {
			return RecordingRef{}, err
		}
		refs, err = r.Lister.ListRecordings(ctx, token)
	}
	if err != nil {
		return RecordingRef{}, err
	}
	if len(refs) == 0 {
		return RecordingRef{}, ErrNotFound
	}
	return refs[len(refs)-1], nil
}

// Attach resolves the recording for token and stores its URL on the
// snapshot. Failures are logged; the transcription still arrives by mail.
func (r *Resolver) Attach(ctx context.Context, token string) {
	log := r.log().With("entry_id", token)

	ref, err := r.Resolve(ctx, token)
	switch {
	case errors.Is(err, ErrNotFound):
		log.Info("no recording for call")
		return
	case err != nil:
		log.Warn("recording lookup failed", "err", err)
		return
	}

	ok, err := r.Store.UpdateRecordingURL(ctx, token, ref.URL)
	if err != nil {
		log.Warn("storing recording url failed", "err", err)
		return
	}
	if !ok {
		log.Info("snapshot gone before recording resolved")
		return
	}
	log.Debug("recording attached", "recording_id", ref.ID)
}

func (r *Resolver) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r *Resolver) log() *slog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return slog.Default()
}
