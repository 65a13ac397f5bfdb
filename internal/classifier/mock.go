package classifier

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
)

// MockAdapter answers deterministically from keywords. It lets the
// service run locally without a completion backend.
type MockAdapter struct{}

var (
	faultWords = []string{
		"не работает", "не грузит", "медленн", "пропадает", "отключ", "нет интернета",
		"not working", "slow", "down", "drops",
	}
	// "Волгоград, улица Мира, дом 10" up to the house number.
	mockAddressRe = regexp.MustCompile(`(?i)([\p{L}-]+,\s*(?:улица|ул\.|проспект|пр\.|street|st\.)?\s*[\p{L}\d -]+?,\s*(?:дом|д\.|house)?\s*\d+[\p{L}]?)`)
)

func (MockAdapter) Complete(_ context.Context, system, user string) (string, error) {
	if system == summaryPrompt {
		return mockSubject(user), nil
	}

	text := user
	if i := strings.Index(user, "Transcription:\n"); i >= 0 {
		text = user[i+len("Transcription:\n"):]
	}
	lower := strings.ToLower(text)

	out := rawResult{Intent: string(IntentConnection), Confidence: string(ConfidenceLow)}
	for _, w := range faultWords {
		if strings.Contains(lower, w) {
			out.Intent = string(IntentSupport)
			out.Issue = strings.TrimSpace(text)
			break
		}
	}
	if out.Intent == string(IntentConnection) {
		if m := mockAddressRe.FindString(text); m != "" {
			out.Address = strings.TrimSpace(m)
			out.Confidence = string(ConfidenceHigh)
		}
		out.Issue = "new connection"
	}
	b, _ := json.Marshal(out)
	return string(b), nil
}

func mockSubject(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	return truncate(text, 60)
}
