// Package identity maps reference image filenames to identity keys.
package identity

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ParseFilename derives a display name from a reference image filename.
// The extension is stripped and anything from the first underscore onward is
// treated as a disambiguating suffix: "JaneSmith_1.jpg" -> "JaneSmith".
func ParseFilename(filename string) string {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if i := strings.Index(base, "_"); i >= 0 {
		base = base[:i]
	}
	return base
}

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// Normalize produces the canonical identity key for a display name.
// Two filenames that normalize to the same key refer to the same person.
func Normalize(name string) string {
	name = RemoveDiacritics(name)
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", " ")
	return strings.TrimSpace(name)
}
