// Package classifier extracts intent, address and issue from a voicemail
// transcription using a text-completion service.
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"contact-automation/internal/address"
	"contact-automation/internal/faults"
)

type Intent string

const (
	IntentConnection Intent = "connection_request"
	IntentSupport    Intent = "support_request"
)

type Confidence string

const (
	ConfidenceHigh Confidence = "high"
	ConfidenceLow  Confidence = "low"
)

var (
	// ErrUnavailable means the completion service could not be used at all.
	ErrUnavailable = errors.New("classification unavailable")
	// ErrMalformed means the service answered with something unparsable.
	ErrMalformed = errors.New("classification malformed")
)

// Result is derived per transcription and never mutated.
type Result struct {
	Intent     Intent     `json:"intent"`
	Address    string     `json:"address,omitempty"`
	Issue      string     `json:"issue,omitempty"`
	Confidence Confidence `json:"confidence"`
}

// Default is the classification used whenever the real one cannot be
// obtained: a connection request with no usable address.
func Default() Result {
	return Result{Intent: IntentConnection, Confidence: ConfidenceLow}
}

// Classifier turns transcriptions into Results.
type Classifier struct {
	adapter Adapter
	log     *slog.Logger
}

func New(adapter Adapter, log *slog.Logger) *Classifier {
	if log == nil {
		log = slog.Default()
	}
	return &Classifier{adapter: adapter, log: log}
}

// Classify asks the completion service to classify text. On any failure
// the returned Result is Default() and the error wraps ErrUnavailable or
// ErrMalformed, so callers may use the Result either way.
func (c *Classifier) Classify(ctx context.Context, text, callerNumber string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Default(), nil
	}
	reply, err := c.adapter.Complete(ctx, systemPrompt, userPrompt(text, callerNumber))
	if err != nil {
		if errors.Is(err, faults.ErrMalformed) {
			return Default(), fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		return Default(), fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	res, err := ParseReply(reply)
	if err != nil {
		c.log.Warn("unparsable classification", "reply", truncate(reply, 200), "err", err)
		return Default(), err
	}
	return res, nil
}

type rawResult struct {
	Intent     string `json:"intent"`
	Address    string `json:"address"`
	Issue      string `json:"issue"`
	Confidence string `json:"confidence"`
}

// ParseReply extracts the JSON object from a completion reply. Code fences
// and surrounding prose are tolerated. Confidence is downgraded to low
// unless the address has locality, street and house number.
func ParseReply(reply string) (Result, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return Default(), fmt.Errorf("%w: no json object in reply", ErrMalformed)
	}
	var raw rawResult
	if err := json.Unmarshal([]byte(reply[start:end+1]), &raw); err != nil {
		return Default(), fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	var res Result
	switch normalizeToken(raw.Intent) {
	case "connection_request", "connection":
		res.Intent = IntentConnection
	case "support_request", "support":
		res.Intent = IntentSupport
	default:
		return Default(), fmt.Errorf("%w: unknown intent %q", ErrMalformed, raw.Intent)
	}

	res.Address = strings.TrimSpace(raw.Address)
	if strings.EqualFold(res.Address, "null") {
		res.Address = ""
	}
	res.Issue = strings.TrimSpace(raw.Issue)

	res.Confidence = ConfidenceLow
	if normalizeToken(raw.Confidence) == string(ConfidenceHigh) &&
		address.HasHouseNumberShape(address.Normalize(res.Address)) {
		res.Confidence = ConfidenceHigh
	}
	return res, nil
}

func normalizeToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("-", "_", " ", "_").Replace(s)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
