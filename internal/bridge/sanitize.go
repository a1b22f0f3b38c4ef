package bridge

import "strings"

// Sanitize normalizes a message body: surrounding whitespace is
// trimmed and control characters are dropped, keeping tab, newline and
// carriage return. Length rules apply to the sanitized form.
func Sanitize(body string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', '\t':
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, body)
	return strings.TrimSpace(cleaned)
}
