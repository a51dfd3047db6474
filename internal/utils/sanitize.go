package utils

import "strings"

// SanitizePathComponent restricts a string to characters that are safe
// in storage object keys. Anything outside [a-zA-Z0-9-_] becomes an
// underscore, so course codes and cycle labels from external sources
// cannot smuggle separators or traversal sequences into a key.
func SanitizePathComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	return b.String()
}

// DownloadFilename builds the Content-Disposition filename for a sheet
// download from its course code, exam type and cycle.
func DownloadFilename(courseCode, examType, cycle string) string {
	parts := []string{
		SanitizePathComponent(courseCode),
		SanitizePathComponent(examType),
		SanitizePathComponent(cycle),
	}
	return strings.Join(parts, "-") + ".pdf"
}
