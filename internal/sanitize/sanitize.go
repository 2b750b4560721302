// Package sanitize strips contact details and links out of user-submitted
// text before it is published or stored. Confessions are anonymous; a URL,
// phone number or email in the body would defeat the point.
package sanitize

import (
	"regexp"
	"strings"
)

// Marker is the fixed replacement for every redacted substring.
const Marker = "[redacted]"

// One alternation so overlapping candidates are resolved left-to-right in a
// single pass. Matches full substrings, not just the identifying prefix.
var redactRe = regexp.MustCompile(`(?i)https?://[^\s]+|www\.[^\s]+|[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}|\+?[0-9]{6,}`)

// Clean replaces URL-like, www-prefixed, phone-number-like and email-like
// substrings with Marker and trims surrounding whitespace.
//
// Clean is idempotent: the marker itself contains nothing the pattern
// matches, so Clean(Clean(s)) == Clean(s).
func Clean(text string) string {
	return strings.TrimSpace(redactRe.ReplaceAllString(text, Marker))
}
