package validate

import "strings"

// Normalize canonicalizes a free-text code: surrounding whitespace is
// trimmed and letters are uppercased.
func Normalize(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// normalizeValue normalizes a raw argument value. nil normalizes to "".
// ok is false when the value is not textual.
func normalizeValue(raw any) (code string, ok bool) {
	switch v := raw.(type) {
	case nil:
		return "", true
	case string:
		return Normalize(v), true
	default:
		return "", false
	}
}
