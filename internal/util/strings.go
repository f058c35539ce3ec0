// Package util provides shared utility functions used across the codebase.
package util

import (
	"github.com/charmbracelet/x/ansi"
)

// TruncateString truncates a string to maxLen runes, adding "..." if truncated.
// Used for log previews where a visible truncation marker helps.
func TruncateString(s string, maxLen int) string {
	if maxLen <= 3 {
		return "..."
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}

// Excerpt returns at most maxLen runes of s with terminal escape sequences
// removed. Unlike TruncateString it never appends a marker, so the result is
// always a prefix of the cleaned text.
func Excerpt(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(ansi.Strip(s))
	if len(runes) <= maxLen {
		return string(runes)
	}
	return string(runes[:maxLen])
}
