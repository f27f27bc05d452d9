// Package util provides text helpers shared by the terminal commands.
package util

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// ellipsis marks truncated text.
const ellipsis = "..."

// SingleLine collapses a payload onto one line: line breaks and tabs become
// single spaces and surrounding whitespace is trimmed.
func SingleLine(s string) string {
	if !strings.ContainsAny(s, "\r\n\t") {
		return strings.TrimSpace(s)
	}
	return strings.Join(strings.Fields(s), " ")
}

// TruncateANSI truncates s to maxWidth visual columns, ending it with "..."
// when anything was cut. Escape sequences and wide characters are measured
// correctly, so styled text can be passed in.
func TruncateANSI(s string, maxWidth int) string {
	if maxWidth <= len(ellipsis) {
		return ellipsis
	}
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	// ansi.Truncate includes the tail in the final width
	return ansi.Truncate(s, maxWidth, ellipsis)
}

// FitLine prepares a payload for a fixed-width row.
func FitLine(s string, maxWidth int) string {
	return TruncateANSI(SingleLine(s), maxWidth)
}
