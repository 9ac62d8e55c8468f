package identity

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeHandle trims and NFC-normalizes a handle. Case is preserved:
// "Ana" and "ana" are different handles.
func NormalizeHandle(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// NormalizeName trims and NFC-normalizes a display name.
func NormalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// NormalizeDescription trims a free-form profile description.
func NormalizeDescription(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
