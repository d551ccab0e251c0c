// Package policy masks sensitive values before they reach logs.
package policy

import (
	"regexp"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
)

const maxLoggedText = 64

// RedactPII masks common high-risk PII patterns.
func RedactPII(input string) (redacted string, changed bool) {
	out := input

	next := emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	// Card numbers first, or the phone pattern swallows them.
	next = cardPattern.ReplaceAllString(out, "[REDACTED_CARD]")
	changed = changed || next != out
	out = next

	next = phonePattern.ReplaceAllString(out, "[REDACTED_PHONE]")
	changed = changed || next != out
	out = next

	return out, changed
}

// RedactSecrets replaces every occurrence of each non-empty secret.
func RedactSecrets(input string, secrets ...string) string {
	for _, s := range secrets {
		if s == "" {
			continue
		}
		input = strings.ReplaceAll(input, s, "[REDACTED]")
	}
	return input
}

// LogText prepares free text typed by a user for a debug log line: PII is
// masked and long input is truncated.
func LogText(input string) string {
	out, _ := RedactPII(strings.TrimSpace(input))
	if r := []rune(out); len(r) > maxLoggedText {
		out = string(r[:maxLoggedText]) + "…"
	}
	return out
}
