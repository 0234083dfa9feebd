package analysis

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	PreambleTitle = "解析详情"
	FallbackTitle = "AI 解析"
)

type Section struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Segment splits analysis markdown into titled sections.
//
// A line of 1-6 '#' followed by whitespace and text opens a section. Body
// text seen before any heading is titled PreambleTitle. Sections whose body
// is blank are dropped. Input without any heading yields a single
// FallbackTitle section holding the whole trimmed text.
func Segment(markdown string) []Section {
	var (
		out      []Section
		title    string
		body     []string
		headings int
	)

	flush := func() {
		text := strings.TrimSpace(strings.Join(body, "\n"))
		body = body[:0]
		if text == "" {
			return
		}
		t := title
		if t == "" {
			t = PreambleTitle
		}
		out = append(out, Section{Title: t, Body: text})
	}

	for _, line := range splitLines(markdown) {
		if h, ok := headingText(line); ok {
			flush()
			title = h
			headings++
			continue
		}
		body = append(body, line)
	}
	flush()

	if headings == 0 {
		if text := strings.TrimSpace(markdown); text != "" {
			return []Section{{Title: FallbackTitle, Body: text}}
		}
		return nil
	}
	return out
}

// Rejoin renders sections back into markdown that Segment splits at the
// same boundaries.
func Rejoin(sections []Section) string {
	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		parts = append(parts, "## "+s.Title+"\n"+s.Body)
	}
	return strings.Join(parts, "\n")
}

func splitLines(s string) []string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// headingText reports whether line is a heading and returns its title.
func headingText(line string) (string, bool) {
	n := 0
	for n < len(line) && line[n] == '#' {
		n++
	}
	if n == 0 || n > 6 {
		return "", false
	}
	rest := line[n:]
	r, size := utf8.DecodeRuneInString(rest)
	if size == 0 || !unicode.IsSpace(r) {
		return "", false
	}
	// at least one character after the first separator
	if len(rest[size:]) == 0 {
		return "", false
	}
	return strings.TrimSpace(rest[size:]), true
}
