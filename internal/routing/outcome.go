package routing

import (
	"fmt"
	"strings"
	"time"

	"contact-automation/internal/classifier"
)

// Input is everything known about one call when it is routed.
type Input struct {
	Key             string    `json:"key"`
	Source          string    `json:"source"`
	Token           string    `json:"entry_id,omitempty"`
	CallerNumber    string    `json:"caller_number,omitempty"`
	Transcription   string    `json:"transcription,omitempty"`
	RecordingURL    string    `json:"recording_url,omitempty"`
	DurationSeconds int       `json:"duration_seconds,omitempty"`
	PressedKey      string    `json:"pressed_key,omitempty"`
	ReceivedAt      time.Time `json:"received_at"`
}

// Outcome is the terminal record for one call. It is stored in the ledger
// so a failed CRM write can be replayed; the *ID fields record progress so
// a replay does not recreate what already exists.
type Outcome struct {
	Key             string            `json:"key"`
	Source          string            `json:"source"`
	Action          Action            `json:"action"`
	Reason          string            `json:"reason"`
	CallerNumber    string            `json:"caller_number,omitempty"`
	Transcription   string            `json:"transcription,omitempty"`
	Classification  classifier.Result `json:"classification"`
	Address         string            `json:"address,omitempty"`
	FullAddress     string            `json:"full_address,omitempty"`
	RecordingURL    string            `json:"recording_url,omitempty"`
	DurationSeconds int               `json:"duration_seconds,omitempty"`
	PressedKey      string            `json:"pressed_key,omitempty"`
	Subject         string            `json:"subject,omitempty"`
	FollowUpAt      *time.Time        `json:"follow_up_at,omitempty"`

	LeadID       string `json:"lead_id,omitempty"`
	TicketNumber string `json:"ticket_number,omitempty"`
	TaskID       string `json:"task_id,omitempty"`
	NoteAdded    bool   `json:"note_added,omitempty"`
}

// ExternalID is the CRM identifier of the primary artefact.
func (o Outcome) ExternalID() string {
	if o.TicketNumber != "" {
		return o.TicketNumber
	}
	return o.LeadID
}

func (o Outcome) leadTitle() string {
	switch o.Action {
	case ActionWaitlist:
		return "Лист ожидания: " + nonEmpty(o.CallerNumber, "номер не определён")
	default:
		return "Заявка на подключение: " + nonEmpty(o.CallerNumber, "номер не определён")
	}
}

// description renders the human-readable body shared by leads and tickets.
func (o Outcome) description() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Источник: автоответчик (%s)\n", o.Source)
	fmt.Fprintf(&b, "Телефон: %s\n", nonEmpty(o.CallerNumber, "не определён"))
	if o.DurationSeconds > 0 {
		fmt.Fprintf(&b, "Длительность: %d с\n", o.DurationSeconds)
	}
	if o.PressedKey != "" {
		fmt.Fprintf(&b, "Нажатая клавиша: %s\n", o.PressedKey)
	}
	if o.Address != "" {
		fmt.Fprintf(&b, "Адрес: %s\n", o.Address)
	}
	if o.FullAddress != "" && o.FullAddress != o.Address {
		fmt.Fprintf(&b, "Адрес (справочник): %s\n", o.FullAddress)
	}
	if o.Classification.Issue != "" {
		fmt.Fprintf(&b, "Суть: %s\n", o.Classification.Issue)
	}
	if o.RecordingURL != "" {
		fmt.Fprintf(&b, "Запись: %s\n", o.RecordingURL)
	}
	if o.Transcription != "" {
		fmt.Fprintf(&b, "\nРасшифровка:\n%s\n", o.Transcription)
	} else {
		b.WriteString("\nРасшифровка отсутствует.\n")
	}
	return b.String()
}

func nonEmpty(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
