package transport

import (
	"strings"
	"unicode"
)

// toSnake normalizes a table name for use inside a cache namespace: camelCase and
// punctuation become underscores so prefixes stay plain ASCII words.
func toSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(runes) + len(runes)/2)

	pendingUnderscore := false
	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))) {
				pendingUnderscore = true
			}
			r = unicode.ToLower(r)
		case unicode.IsLower(r) || unicode.IsDigit(r):
		default:
			pendingUnderscore = true
			continue
		}
		if pendingUnderscore && b.Len() > 0 {
			b.WriteByte('_')
		}
		pendingUnderscore = false
		b.WriteRune(r)
	}
	return b.String()
}
