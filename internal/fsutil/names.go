package fsutil

import "strings"

// maxNameLen bounds a sanitized path component.
const maxNameLen = 128

// SafeName makes a single path component from a string taken from input
// data, such as a date stamp read from a directory name or a file attribute.
// Characters other than ASCII letters, digits, dot, underscore and dash
// become an underscore, runs of underscores collapse, and leading or
// trailing dots and underscores are trimmed. An empty result is "unknown".
func SafeName(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxNameLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
