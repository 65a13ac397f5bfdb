// Package address turns spoken addresses into the written form the
// coverage lookup understands.
package address

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	wordRe       = regexp.MustCompile(`\p{L}+`)
	joinerRe     = regexp.MustCompile(`^[\s-]+$`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Normalize replaces spelled-out ordinal and cardinal number words with
// digits. Matching is whole-word and case-insensitive; everything else in s
// (punctuation, other words, spacing) is kept as is.
//
//	"Финал, Пятидесятая улица" -> "Финал, 50 улица"
//	"Вторая Продольная"        -> "2-я Продольная"
//	"дом двадцать пять"        -> "дом 25"
func Normalize(s string) string {
	spans := wordRe.FindAllStringIndex(s, -1)
	if len(spans) == 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	last := 0
	for i := 0; i < len(spans); i++ {
		start, end := spans[i][0], spans[i][1]
		n, ok := lookup(s[start:end])
		if !ok {
			continue
		}

		// "пятьдесят вторая", "twenty-five": a round ten followed by a unit.
		if n.kind == cardinal && n.value >= 20 && n.value < 100 && i+1 < len(spans) {
			ns, ne := spans[i+1][0], spans[i+1][1]
			if unit, ok := lookup(s[ns:ne]); ok && unit.value < 10 && joinerRe.MatchString(s[end:ns]) {
				n = numeral{value: n.value + unit.value, kind: unit.kind, suffix: unit.suffix}
				end = ne
				i++
			}
		}

		b.WriteString(s[last:start])
		b.WriteString(render(n))
		last = end
	}
	b.WriteString(s[last:])
	return b.String()
}

func lookup(word string) (numeral, bool) {
	w := strings.ReplaceAll(strings.ToLower(word), "ё", "е")
	n, ok := lexicon[w]
	return n, ok
}

func render(n numeral) string {
	digits := strconv.Itoa(n.value)
	if n.kind == cardinal || n.suffix == "" {
		return digits
	}
	// Round tens and hundreds read naturally without a suffix ("50 улица").
	if n.value >= 20 && n.value%10 == 0 {
		return digits
	}
	return digits + "-" + n.suffix
}

// HasHouseNumberShape reports whether s looks like
// "<locality>, <street>, <house-number>": at least three comma separated
// parts, the first two with letters and a later part with a digit.
func HasHouseNumberShape(s string) bool {
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(whitespaceRe.ReplaceAllString(p, " "))
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) < 3 {
		return false
	}
	if !hasLetter(parts[0]) || !hasLetter(parts[1]) {
		return false
	}
	for _, p := range parts[2:] {
		if strings.IndexFunc(p, unicode.IsDigit) >= 0 {
			return true
		}
	}
	return false
}

func hasLetter(s string) bool {
	return strings.IndexFunc(s, unicode.IsLetter) >= 0
}
