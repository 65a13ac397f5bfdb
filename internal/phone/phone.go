// Package phone normalizes caller numbers so that telephony events, mail
// bodies and CRM records can be compared.
package phone

import (
	"regexp"
	"strings"
)

var candidate = regexp.MustCompile(`\+?[78]?[\s\-(]*\d{3}[\s\-)]*\d{3}[\s\-]*\d{2}[\s\-]*\d{2}`)

// Normalize returns the E.164 form of a Russian number (+7XXXXXXXXXX).
// Numbers that are not recognizable are returned with only digits and a
// leading '+' kept. Empty input yields "".
func Normalize(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch {
	case digits == "":
		return ""
	case len(digits) == 11 && (digits[0] == '8' || digits[0] == '7'):
		return "+7" + digits[1:]
	case len(digits) == 10 && digits[0] == '9':
		return "+7" + digits
	default:
		return "+" + digits
	}
}

// Equal compares two numbers after normalization. Empty numbers never match.
func Equal(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	return na != "" && na == nb
}

// Find returns the first phone-looking substring in text, normalized.
func Find(text string) string {
	m := candidate.FindString(text)
	if m == "" {
		return ""
	}
	return Normalize(m)
}
