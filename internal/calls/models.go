package calls

import "time"

// Call is one physical phone call while it is live.
//
// CallID is assigned by the provider per call. CorrelationToken (entry_id)
// links the call to its recording and transcription and may differ from
// CallID. Calls are not persisted: on teardown the data is folded into the
// outcome for the call.
type Call struct {
	CallID           string    `json:"call_id"`
	CallerNumber     string    `json:"caller_number"`
	CorrelationToken string    `json:"entry_id,omitempty"`
	StartedAt        time.Time `json:"started_at"`
	State            State     `json:"state"`
	Turns            []Turn    `json:"turns,omitempty"`
}

type State string

const (
	StateRinging    State = "ringing"
	StateInProgress State = "in_progress"
	StateEnded      State = "ended"
)

// Turn is one utterance of a voice-assistant dialogue.
type Turn struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

const (
	RoleCaller    = "caller"
	RoleAssistant = "assistant"
)

// EventKind is the lifecycle event reported by the telephony provider.
type EventKind string

const (
	EventAppeared   EventKind = "appeared"
	EventRinging    EventKind = "ringing"
	EventConnected  EventKind = "connected"
	EventInProgress EventKind = "in_progress"
	EventOnHold     EventKind = "on_hold"
	EventEnded      EventKind = "ended"
)

type CallEvent struct {
	CallID       string
	Kind         EventKind
	CallerNumber string
	Token        string
	At           time.Time
}

// Transcript joins the caller's turns, oldest first.
func (c Call) Transcript() string {
	var out []byte
	for _, t := range c.Turns {
		if t.Role != RoleCaller || t.Text == "" {
			continue
		}
		if len(out) > 0 {
			out = append(out, '\n')
		}
		out = append(out, t.Text...)
	}
	return string(out)
}
