package telephony

import (
	"strconv"
	"strings"
	"time"

	"contact-automation/internal/calls"
	"contact-automation/internal/phone"
	"contact-automation/internal/routing"
)

// CallEventPayload is the call lifecycle webhook. The provider sends JSON
// or application/x-www-form-urlencoded with the same field names.
type CallEventPayload struct {
	CallID    string `json:"call_id" form:"call_id" validate:"required"`
	State     string `json:"state" form:"state" validate:"required"`
	From      string `json:"from" form:"from"`
	EntryID   string `json:"entry_id" form:"entry_id"`
	Timestamp string `json:"timestamp" form:"timestamp"`
}

func (p CallEventPayload) ToCallEvent(now time.Time) calls.CallEvent {
	return calls.CallEvent{
		CallID:       p.CallID,
		Kind:         normalizeState(p.State),
		CallerNumber: phone.Normalize(p.From),
		Token:        p.EntryID,
		At:           parseTimestamp(p.Timestamp, now),
	}
}

type DTMFPayload struct {
	EntryID string `json:"entry_id" form:"entry_id" validate:"required"`
	Digit   string `json:"digit" form:"digit" validate:"required,len=1"`
}

type SummaryPayload struct {
	EntryID    string `json:"entry_id" form:"entry_id" validate:"required"`
	From       string `json:"from" form:"from"`
	Duration   int    `json:"duration" form:"duration" validate:"gte=0"`
	PressedKey string `json:"pressed_key" form:"pressed_key" validate:"omitempty,len=1"`
}

func (p SummaryPayload) ToSummaryEvent() routing.SummaryEvent {
	return routing.SummaryEvent{
		Token:           p.EntryID,
		CallerNumber:    phone.Normalize(p.From),
		DurationSeconds: p.Duration,
		PressedKey:      p.PressedKey,
	}
}

type TurnPayload struct {
	CallID string `json:"call_id" form:"call_id" validate:"required"`
	Role   string `json:"role" form:"role" validate:"required,oneof=caller assistant"`
	Text   string `json:"text" form:"text" validate:"required"`
}

// normalizeState maps provider spellings ("in-progress", "ENDED") to events.
func normalizeState(s string) calls.EventKind {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	switch s {
	case "appeared", "new", "incoming":
		return calls.EventAppeared
	case "ringing":
		return calls.EventRinging
	case "connected", "answered":
		return calls.EventConnected
	case "in_progress":
		return calls.EventInProgress
	case "on_hold", "hold":
		return calls.EventOnHold
	case "ended", "completed", "hangup", "disconnected":
		return calls.EventEnded
	}
	return calls.EventKind(s)
}

// parseTimestamp accepts RFC 3339 or unix seconds.
func parseTimestamp(s string, fallback time.Time) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		return time.Unix(n, 0).UTC()
	}
	return fallback
}
