package intake

import (
	"path/filepath"
	"strings"
)

// SanitizeVideoID derives a stable public identifier from a file name:
// extension stripped, lowercased, every run of non-alphanumeric characters
// collapsed into a single underscore.
func SanitizeVideoID(name string) string {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.ToLower(base)

	var builder strings.Builder
	lastUnderscore := true
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			builder.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				builder.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(builder.String(), "_")
	if out == "" {
		return "video"
	}
	return out
}
