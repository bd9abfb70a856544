// Package policy masks personal contact details before conversation logs are persisted.
package policy

import (
	"regexp"
	"strings"
)

var (
	emailPattern  = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	cardPattern   = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
	postalPattern = regexp.MustCompile(`〒\s*\d{3}-?\d{4}`)

	// Domestic 0X-XXXX-XXXX, unhyphenated 070/080/090 mobiles, +CC international.
	phonePattern = regexp.MustCompile(`\+\d{1,3}[ \-]?\d{1,4}[ \-]?\d{1,4}[ \-]?\d{3,4}|0\d{1,4}-\d{1,4}-\d{3,4}|0[789]0\d{8}`)
)

const phoneMarker = "[REDACTED_PHONE]"

// Redactor masks contact details when enabled. The zero value passes text through.
type Redactor struct {
	Enabled bool
}

// Redact returns the masked text and whether anything was replaced.
func (r Redactor) Redact(input string) (string, bool) {
	if !r.Enabled {
		return input, false
	}
	return RedactPII(input)
}

// RedactPII masks e-mail addresses, card numbers, phone numbers and postal codes.
func RedactPII(input string) (redacted string, changed bool) {
	out := input
	for _, rule := range []struct {
		pattern *regexp.Regexp
		marker  string
	}{
		{emailPattern, "[REDACTED_EMAIL]"},
		// Card before phone so long digit runs are not classified as phone numbers.
		{cardPattern, "[REDACTED_CARD]"},
		{postalPattern, "[REDACTED_POSTAL]"},
	} {
		next := rule.pattern.ReplaceAllString(out, rule.marker)
		changed = changed || next != out
		out = next
	}
	next := redactPhones(out)
	return next, changed || next != out
}

// redactPhones masks phone-shaped numbers that stand on their own. A match
// glued to further digits or hyphens is part of a date, amount or ID.
func redactPhones(s string) string {
	matches := phonePattern.FindAllStringIndex(s, -1)
	if len(matches) == 0 {
		return s
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		if !isolated(s, start, end) || !plausiblePhone(s[start:end]) {
			continue
		}
		b.WriteString(s[last:start])
		b.WriteString(phoneMarker)
		last = end
	}
	if last == 0 {
		return s
	}
	b.WriteString(s[last:])
	return b.String()
}

func isolated(s string, start, end int) bool {
	if start > 0 {
		if c := s[start-1]; isDigit(c) || c == '-' || c == '+' {
			return false
		}
	}
	if end < len(s) {
		if c := s[end]; isDigit(c) || c == '-' {
			return false
		}
	}
	return true
}

// plausiblePhone checks the digit count: 10 or 11 for domestic numbers,
// 8 to 15 for international ones.
func plausiblePhone(m string) bool {
	n := 0
	for i := 0; i < len(m); i++ {
		if isDigit(m[i]) {
			n++
		}
	}
	if strings.HasPrefix(m, "+") {
		return n >= 8 && n <= 15
	}
	return n == 10 || n == 11
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
