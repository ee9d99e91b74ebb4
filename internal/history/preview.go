package history

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/yiblet/clipkeep/internal/store"
)

// SensitiveMask replaces the content of sensitive items in any display.
const SensitiveMask = "••••••••"

// Preview renders a one-line summary of item for logs and listings.
// Sensitive items are masked; media items show their kind and type.
func Preview(item store.Item, maxLen int) string {
	if item.IsSensitive() {
		return SensitiveMask
	}

	if item.Kind().IsMedia() {
		label := item.MediaRef()
		if mimes := item.MimeTypes(); len(mimes) > 0 {
			label = mimes[0]
		}
		return Truncate(fmt.Sprintf("[%s %s]", item.Kind(), label), maxLen)
	}

	for _, line := range strings.Split(item.Text(), "\n") {
		if cleaned := Sanitize(line); cleaned != "" {
			return Truncate(cleaned, maxLen)
		}
	}
	return "[blank]"
}

// Truncate ensures s is at most maxLen characters.
// If truncation is needed, appends "..." to indicate truncation.
func Truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)

	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}

	// Reserve 3 characters for "..."
	if maxLen < 3 {
		return strings.Repeat(".", max(maxLen, 0))
	}

	runes := []rune(s)
	return string(runes[:maxLen-3]) + "..."
}

// Sanitize removes control characters and collapses whitespace.
// This ensures previews are safe for display in terminals.
func Sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)

	return strings.Join(strings.Fields(s), " ")
}
