package accounts

import "strings"

// Slugify lowercases the input and collapses every run of characters outside
// [a-z0-9-] into a single hyphen, trimming hyphens from both ends. Applying
// it to its own output is a no-op.
func Slugify(raw string) string {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if lower == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(lower))
	pendingHyphen := false
	for _, r := range lower {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-':
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		default:
			pendingHyphen = true
		}
	}

	return strings.Trim(b.String(), "-")
}
