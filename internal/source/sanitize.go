package source

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"unicode/utf8"
)

// MaxFileNameLength is the longest name, in bytes, most filesystems accept.
const MaxFileNameLength = 255

var (
	invalidChars = regexp.MustCompile(`[<>:"/\\|?*]+`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// SanitizeFileName replaces characters that are unsafe in file names with
// underscores and caps the result at MaxFileNameLength bytes.
func SanitizeFileName(name string) string {
	name = invalidChars.ReplaceAllString(name, "_")
	name = whitespace.ReplaceAllString(name, "_")
	return truncate(name, MaxFileNameLength)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// randomSuffix returns 16 hex characters.
func randomSuffix() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
