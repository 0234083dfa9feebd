package analysis

import (
	"regexp"
	"strings"
)

const (
	maxBulletInsights    = 4
	maxParagraphInsights = 3
)

var (
	// \s is ASCII only; \p{Zs} adds the ideographic space
	bulletLine    = regexp.MustCompile(`^[\s\p{Zs}]*[-*+][\s\p{Zs}]+(.+)$`)
	headingPrefix = regexp.MustCompile(`^#+[\s\p{Zs}]*`)
)

// KeyInsights picks up to four list items, or the first three non-empty
// lines when the text has no list.
func KeyInsights(markdown string) []string {
	lines := splitLines(markdown)

	var bullets []string
	for _, l := range lines {
		m := bulletLine.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		if s := strings.TrimSpace(m[1]); s != "" {
			bullets = append(bullets, s)
		}
	}
	if len(bullets) > 0 {
		if len(bullets) > maxBulletInsights {
			bullets = bullets[:maxBulletInsights]
		}
		return bullets
	}

	var paras []string
	for _, l := range lines {
		s := strings.TrimSpace(headingPrefix.ReplaceAllString(l, ""))
		if s == "" {
			continue
		}
		paras = append(paras, s)
		if len(paras) == maxParagraphInsights {
			break
		}
	}
	return paras
}
