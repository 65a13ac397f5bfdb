package classifier

import (
	"context"
	"strings"
)

const (
	GenericSubject  = "Обращение с автоответчика"
	maxSubjectRunes = 80
)

// Summarizer derives ticket subjects from transcriptions.
type Summarizer struct {
	adapter Adapter
}

func NewSummarizer(adapter Adapter) *Summarizer {
	return &Summarizer{adapter: adapter}
}

// Subject returns a one-line subject for text. Any failure yields
// GenericSubject together with the error.
func (s *Summarizer) Subject(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return GenericSubject, nil
	}
	reply, err := s.adapter.Complete(ctx, summaryPrompt, text)
	if err != nil {
		return GenericSubject, err
	}
	subject := strings.Trim(strings.TrimSpace(firstLine(reply)), `"«»'`)
	if subject == "" {
		return GenericSubject, nil
	}
	r := []rune(subject)
	if len(r) > maxSubjectRunes {
		subject = strings.TrimSpace(string(r[:maxSubjectRunes-1])) + "…"
	}
	return subject, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
