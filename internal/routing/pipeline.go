package routing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"contact-automation/internal/calls"
	"contact-automation/internal/keypress"
	"contact-automation/internal/ledger"
	"contact-automation/internal/mailparse"
	"contact-automation/internal/phone"
	"contact-automation/internal/voicemail"
)

// Outcome sources.
const (
	SourceMail         = "mail"
	SourceOrphan       = "orphan"
	SourceConversation = "conversation"
)

// Correlation strategies, in the order they are tried.
const (
	CorrelatedByToken  = "token"
	CorrelatedByCaller = "caller"
	CorrelatedByLatest = "latest"
	CorrelationMissed  = "miss"
)

// ErrCorrelationMiss is logged when a transcription email matches no call.
var ErrCorrelationMiss = errors.New("routing: transcription matches no known call")

// SummaryEvent is the provider's notice that a voicemail call finished.
type SummaryEvent struct {
	Token           string
	CallerNumber    string
	DurationSeconds int
	PressedKey      string
}

type Extractor interface {
	Extract(ctx context.Context, raw []byte) (mailparse.Message, error)
}

// RecordingAttacher resolves a call's recording onto its snapshot.
type RecordingAttacher interface {
	Attach(ctx context.Context, token string)
}

type Spawner interface {
	Go(name string, fn func(ctx context.Context))
}

// Pipeline correlates the summary, keypress and transcription channels of
// one call and hands the result to the Router.
type Pipeline struct {
	Keypress  *keypress.Cache
	Snapshots voicemail.Store
	Resolver  RecordingAttacher
	Router    *Router
	Extractor Extractor
	Ledger    *ledger.Service

	Background Spawner
	Metrics    Recorder
	Log        *slog.Logger
	Now        func() time.Time

	// CorrelationWindow bounds how old a snapshot matched without a token
	// may be.
	CorrelationWindow time.Duration
	// OrphanGrace is how long a snapshot waits for its transcription
	// before it is routed without one.
	OrphanGrace time.Duration
}

// TokenKey is the ledger key of the outcome for a correlation token.
func TokenKey(token string) string { return "entry:" + token }

// HandleDTMF stores a keypress. A snapshot that is already waiting for
// its transcription picks the digit up as well.
func (p *Pipeline) HandleDTMF(ctx context.Context, token, digit string) error {
	if err := p.Keypress.Record(ctx, token, digit); err != nil {
		return err
	}
	snap, ok, err := p.Snapshots.Get(ctx, token)
	if err != nil || !ok || snap.Resolved {
		return nil
	}
	pressed := p.Keypress.Consume(ctx, token)
	if _, err := p.Snapshots.UpdatePressedKey(ctx, token, pressed); err != nil {
		p.log().Warn("updating snapshot keypress failed", "entry_id", token, "err", err)
	}
	return nil
}

// HandleSummary records the finished call and starts recording
// resolution in the background. It does not wait for the transcription.
func (p *Pipeline) HandleSummary(ctx context.Context, ev SummaryEvent) error {
	if ev.Token == "" {
		return errors.New("summary: entry_id required")
	}
	log := p.log().With("entry_id", ev.Token)

	pressed := p.Keypress.Consume(ctx, ev.Token)
	if ev.PressedKey != "" {
		pressed = ev.PressedKey
	}
	snap := voicemail.Snapshot{
		Token:           ev.Token,
		CallerNumber:    phone.Normalize(ev.CallerNumber),
		DurationSeconds: ev.DurationSeconds,
		PressedKey:      pressed,
		CreatedAt:       p.now(),
	}
	if err := p.Snapshots.Put(ctx, snap); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	log.Info("voicemail snapshot stored", "caller", snap.CallerNumber, "pressed_key", pressed)

	// The transcription may have beaten the summary here.
	if p.Ledger != nil {
		if done, err := p.Ledger.Exists(ctx, TokenKey(ev.Token)); err == nil && done {
			p.resolve(ctx, ev.Token)
		}
	}

	if p.Resolver != nil && p.Background != nil {
		token := ev.Token
		p.Background.Go("recording:"+token, func(ctx context.Context) {
			p.Resolver.Attach(ctx, token)
		})
	}
	return nil
}

// HandleTranscriptionEmail extracts the transcription from raw, matches it
// to a call and routes it. A message that cannot be parsed is still routed
// with whatever could be salvaged, so the caller is never dropped. A
// redelivered message is routed under the key of its first delivery.
func (p *Pipeline) HandleTranscriptionEmail(ctx context.Context, raw []byte) (Outcome, error) {
	msg, err := p.Extractor.Extract(ctx, raw)
	if err != nil {
		p.log().Warn("transcription email unparsable, routing raw data", "err", err)
		msg = mailparse.Message{CallerNumber: phone.Find(string(raw))}
	}
	if msg.MessageID == "" {
		sum := sha256.Sum256(raw)
		msg.MessageID = "sha256:" + hex.EncodeToString(sum[:12])
	}
	log := p.log().With("message_id", msg.MessageID, "transcript_source", msg.TranscriptSource)

	in := Input{
		Source:        SourceMail,
		Token:         msg.Token,
		CallerNumber:  msg.CallerNumber,
		Transcription: msg.Transcript,
		RecordingURL:  msg.RecordingURL,
		ReceivedAt:    p.now(),
	}
	if key, seen := p.deliveredKey(ctx, msg.MessageID, log); seen {
		log.Info("transcription email redelivered", "key", key)
		in.Key = key
		return p.Router.Route(ctx, in)
	}

	snap, strategy := p.correlate(ctx, msg)
	p.metrics().Correlated(strategy)
	log = log.With("correlation", strategy)

	if strategy == CorrelationMissed {
		log.Warn("transcription email not correlated", "err", ErrCorrelationMiss, "entry_id", msg.Token, "caller", msg.CallerNumber)
		in.Key = "mail:" + msg.MessageID
		if msg.Token != "" {
			in.Key = TokenKey(msg.Token)
		}
	} else {
		in.Key = TokenKey(snap.Token)
		in.Token = snap.Token
		if in.CallerNumber == "" {
			in.CallerNumber = snap.CallerNumber
		} else if snap.CallerNumber != "" && !phone.Equal(in.CallerNumber, snap.CallerNumber) {
			log.Warn("caller number differs from the call's", "mail_caller", in.CallerNumber, "call_caller", snap.CallerNumber)
		}
		if snap.RecordingURL != "" {
			in.RecordingURL = snap.RecordingURL
		}
		in.DurationSeconds = snap.DurationSeconds
		in.PressedKey = snap.PressedKey
	}

	if err := p.Snapshots.RememberMessage(ctx, msg.MessageID, in.Key); err != nil {
		log.Warn("remembering message key failed", "err", err)
	}
	if strategy == CorrelationMissed && msg.Token == "" && in.CallerNumber != "" {
		// The call's summary may still be on its way; the sweep pairs them.
		if err := p.Snapshots.AddUnmatched(ctx, in.CallerNumber, in.Key, in.ReceivedAt); err != nil {
			log.Warn("recording unmatched message failed", "err", err)
		}
	}

	out, err := p.Router.Route(ctx, in)
	if errors.Is(err, ErrDuplicate) && strategy != CorrelationMissed {
		if added, nerr := p.Router.AttachLateTranscription(ctx, in.Key, in.Transcription); nerr != nil {
			log.Error("attaching late transcription failed", "key", in.Key, "err", nerr)
		} else if added {
			log.Info("late transcription attached to orphaned call", "key", in.Key)
		}
	}
	if in.Token != "" {
		p.resolve(ctx, in.Token)
	}
	return out, err
}

// deliveredKey returns the key a message was routed under on an earlier
// delivery.
func (p *Pipeline) deliveredKey(ctx context.Context, messageID string, log *slog.Logger) (string, bool) {
	key, ok, err := p.Snapshots.MessageKey(ctx, messageID)
	if err != nil {
		log.Warn("message key lookup failed", "err", err)
	}
	if ok {
		return key, true
	}
	if p.Ledger == nil {
		return "", false
	}
	key = "mail:" + messageID
	if seen, _ := p.Ledger.Exists(ctx, key); seen {
		return key, true
	}
	return "", false
}

// correlate matches msg to a snapshot: by token, then by caller number,
// then, for a message with neither, by the latest snapshot if it is
// unresolved and recent. A caller match never lands on a call that already
// has an outcome, unless that outcome was routed without a transcription.
func (p *Pipeline) correlate(ctx context.Context, msg mailparse.Message) (voicemail.Snapshot, string) {
	log := p.log().With("message_id", msg.MessageID)

	if msg.Token != "" {
		snap, ok, err := p.Snapshots.Get(ctx, msg.Token)
		if err != nil {
			log.Warn("snapshot lookup by token failed", "entry_id", msg.Token, "err", err)
		}
		if ok {
			return snap, CorrelatedByToken
		}
		// A token that is not stored is authoritative; no guessing.
		return voicemail.Snapshot{}, CorrelationMissed
	}

	if msg.CallerNumber != "" {
		snap, ok, err := p.Snapshots.FindByCaller(ctx, msg.CallerNumber)
		if err != nil {
			log.Warn("snapshot lookup by caller failed", "caller", msg.CallerNumber, "err", err)
		}
		switch {
		case !ok:
		case !snap.Resolved:
			return snap, CorrelatedByCaller
		case p.recent(snap) && p.routedAsOrphan(ctx, snap.Token, log):
			return snap, CorrelatedByCaller
		}
		return voicemail.Snapshot{}, CorrelationMissed
	}

	snap, ok, err := p.Snapshots.Latest(ctx)
	if err != nil {
		log.Warn("latest snapshot lookup failed", "err", err)
	}
	if ok && !snap.Resolved && p.recent(snap) {
		return snap, CorrelatedByLatest
	}
	return voicemail.Snapshot{}, CorrelationMissed
}

// routedAsOrphan reports whether the outcome for token was routed by the
// sweep.
func (p *Pipeline) routedAsOrphan(ctx context.Context, token string, log *slog.Logger) bool {
	if p.Ledger == nil {
		return false
	}
	e, err := p.Ledger.Get(ctx, TokenKey(token))
	if err != nil {
		if !errors.Is(err, ledger.ErrNotFound) {
			log.Warn("ledger lookup failed", "entry_id", token, "err", err)
		}
		return false
	}
	return e.Source == SourceOrphan
}

// HandleConversation routes the dialogue of a voice-assistant call.
func (p *Pipeline) HandleConversation(ctx context.Context, c calls.Call) (Outcome, error) {
	key := "call:" + c.CallID
	if c.CorrelationToken != "" {
		key = TokenKey(c.CorrelationToken)
	}
	in := Input{
		Key:           key,
		Source:        SourceConversation,
		Token:         c.CorrelationToken,
		CallerNumber:  c.CallerNumber,
		Transcription: c.Transcript(),
		ReceivedAt:    p.now(),
	}
	out, err := p.Router.Route(ctx, in)
	if c.CorrelationToken != "" {
		p.resolve(ctx, c.CorrelationToken)
	}
	return out, err
}

// SweepOrphans routes snapshots whose transcription never arrived within
// OrphanGrace. Snapshots already covered by an outcome are skipped. It
// returns how many were routed.
func (p *Pipeline) SweepOrphans(ctx context.Context) (int, error) {
	now := p.now()
	snaps, err := p.Snapshots.TakeExpired(ctx, now.Add(-p.orphanGrace()))
	if err != nil {
		return 0, fmt.Errorf("take expired snapshots: %w", err)
	}

	routed := 0
	for _, s := range snaps {
		if ctx.Err() != nil {
			return routed, ctx.Err()
		}
		log := p.log().With("entry_id", s.Token, "caller", s.CallerNumber)
		if p.covered(ctx, s, log) {
			log.Debug("snapshot already has an outcome")
			p.resolve(ctx, s.Token)
			continue
		}

		log.Warn("no transcription arrived, routing call without it")
		_, err := p.Router.Route(ctx, Input{
			Key:             TokenKey(s.Token),
			Source:          SourceOrphan,
			Token:           s.Token,
			CallerNumber:    s.CallerNumber,
			RecordingURL:    s.RecordingURL,
			DurationSeconds: s.DurationSeconds,
			PressedKey:      s.PressedKey,
			ReceivedAt:      now,
		})
		p.resolve(ctx, s.Token)
		switch {
		case errors.Is(err, ErrDuplicate):
			continue
		case err != nil:
			// The ledger holds it for RetryFailed.
			log.Error("routing orphaned call failed", "err", err)
		}
		p.metrics().OrphanRouted()
		routed++
	}
	return routed, nil
}

// covered reports whether an outcome already exists for s, either under
// its token or as a transcription from the same caller that arrived before
// the summary and matched nothing. Each such transcription covers one call.
func (p *Pipeline) covered(ctx context.Context, s voicemail.Snapshot, log *slog.Logger) bool {
	if p.Ledger != nil {
		exists, err := p.Ledger.Exists(ctx, TokenKey(s.Token))
		if err != nil {
			log.Warn("ledger lookup failed", "err", err)
		}
		if exists {
			return true
		}
	}
	if s.CallerNumber == "" {
		return false
	}
	key, ok, err := p.Snapshots.TakeUnmatched(ctx, s.CallerNumber, s.CreatedAt.Add(-p.orphanGrace()))
	if err != nil {
		log.Warn("unmatched message lookup failed", "err", err)
		return false
	}
	if ok {
		log.Info("call covered by an uncorrelated transcription", "key", key)
	}
	return ok
}

func (p *Pipeline) resolve(ctx context.Context, token string) {
	if err := p.Snapshots.Resolve(ctx, token); err != nil {
		p.log().Warn("marking snapshot resolved failed", "entry_id", token, "err", err)
	}
}

func (p *Pipeline) recent(s voicemail.Snapshot) bool {
	return p.now().Sub(s.CreatedAt) <= p.correlationWindow()
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Pipeline) log() *slog.Logger {
	if p.Log != nil {
		return p.Log
	}
	return slog.Default()
}

func (p *Pipeline) metrics() Recorder {
	if p.Metrics != nil {
		return p.Metrics
	}
	return NopRecorder{}
}

func (p *Pipeline) correlationWindow() time.Duration {
	if p.CorrelationWindow > 0 {
		return p.CorrelationWindow
	}
	return 2 * time.Hour
}

func (p *Pipeline) orphanGrace() time.Duration {
	if p.OrphanGrace > 0 {
		return p.OrphanGrace
	}
	return 30 * time.Minute
}
