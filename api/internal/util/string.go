package util

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	fenceOpen  = regexp.MustCompile("(?i)^```(json|markdown|text)?\n")
	fenceClose = regexp.MustCompile("\n```$")
)

// StripCodeFences removes one fenced-block wrapper around s, if present.
// Only the json, markdown and text language tags are recognized.
func StripCodeFences(s string) string {
	s = fenceOpen.ReplaceAllString(strings.TrimLeftFunc(s, unicode.IsSpace), "")
	// the closing fence is often followed by a newline
	s = fenceClose.ReplaceAllString(strings.TrimRightFunc(s, unicode.IsSpace), "")
	return strings.TrimSpace(s)
}

// Truncate shortens s to at most n bytes for log lines.
func Truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
