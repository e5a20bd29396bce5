// Package sanitize implements the filename sanitizer (spec C3), ported
// directly from the ordered rule list in
// app/services/storage/sanitizer.py's SecurityFilenameSanitizer.
package sanitize

import (
	"strings"
	"unicode"
)

// DefaultMaxLength is the maximum sanitized filename length in bytes.
const DefaultMaxLength = 255

// dangerousChars are shell metacharacters and the NUL byte, stripped
// entirely rather than replaced.
var dangerousChars = []string{";", "|", "&", "$", "`", "<", ">", "\x00"}

// Filename applies the rules in order and returns the sanitized name:
//  1. remove every occurrence of ".."
//  2. replace '/' and '\' with '_'
//  3. strip shell metacharacters and NUL
//  4. drop non-printable code points
//  5. truncate to maxLength bytes, preserving the extension when present
//
// The caller is responsible for rejecting an empty name before sanitizing;
// Filename does not guarantee a non-empty result.
func Filename(name string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}

	name = strings.ReplaceAll(name, "..", "")
	name = strings.NewReplacer("/", "_", "\\", "_").Replace(name)

	for _, c := range dangerousChars {
		name = strings.ReplaceAll(name, c, "")
	}

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if unicode.IsPrint(r) {
			b.WriteRune(r)
		}
	}
	name = b.String()

	if len(name) > maxLength {
		name = truncate(name, maxLength)
	}
	return name
}

// truncate shortens name to at most maxLength bytes, keeping the last
// ".<ext>" segment intact when one exists.
func truncate(name string, maxLength int) string {
	if idx := strings.LastIndex(name, "."); idx > 0 {
		ext := name[idx+1:]
		available := maxLength - len(ext) - 1
		if available > 0 {
			return name[:available] + "." + ext
		}
	}
	return name[:maxLength]
}
