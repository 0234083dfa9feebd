package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"jlpt-snap/api/internal/analysis"
	"jlpt-snap/api/internal/apperr"
)

const (
	noSectionsText = "尚未生成结构化解析内容。"
	footerText     = "由 AI 生成，仅供参考。"
)

// formatResult renders a result as plain-text messages, each under the
// Telegram length limit.
func formatResult(res analysis.Result) []string {
	var b strings.Builder
	fmt.Fprintf(&b, "【%s】\n\n", res.Type.Label())

	b.WriteString("📷 识别文本\n")
	b.WriteString(strings.TrimSpace(res.OCRText))
	b.WriteString("\n\n")

	if insights := res.KeyInsights(); len(insights) > 0 {
		b.WriteString("💡 要点\n")
		for _, in := range insights {
			b.WriteString("• ")
			b.WriteString(in)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	sections := res.Sections()
	if len(sections) == 0 {
		b.WriteString(noSectionsText)
		b.WriteString("\n\n")
	}
	for _, s := range sections {
		b.WriteString("▍")
		b.WriteString(s.Title)
		b.WriteString("\n")
		b.WriteString(s.Body)
		b.WriteString("\n\n")
	}
	b.WriteString(footerText)

	return splitMessage(b.String(), maxMessageRunes)
}

// splitMessage cuts text into pieces of at most limit runes, preferring
// line boundaries.
func splitMessage(text string, limit int) []string {
	var (
		out  []string
		cur  strings.Builder
		size int
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
		size = 0
	}

	for _, line := range strings.Split(text, "\n") {
		runes := []rune(line)
		for len(runes) > limit {
			flush()
			out = append(out, string(runes[:limit]))
			runes = runes[limit:]
		}
		n := len(runes) + 1
		if size+n > limit {
			flush()
		}
		cur.WriteString(string(runes))
		cur.WriteString("\n")
		size += n
	}
	flush()
	return out
}

func errorText(err error) string {
	return fmt.Sprintf("错误: %s (请检查设置中的API Key和模型名称)", userMessage(err))
}

// userMessage is the human part of err without kind/stage tags.
func userMessage(err error) string {
	ae, ok := apperr.As(err)
	if !ok {
		return err.Error()
	}
	switch ae.Kind {
	case apperr.KindUpstreamHTTP:
		if ae.Body == "" {
			return fmt.Sprintf("%s: %d", ae.Message, ae.Status)
		}
		return fmt.Sprintf("%s: %d - %s", ae.Message, ae.Status, ae.Body)
	case apperr.KindTransport:
		if errors.Is(ae.Cause, context.DeadlineExceeded) {
			return "请求超时"
		}
		return fmt.Sprintf("网络请求失败: %v", ae.Cause)
	default:
		if ae.Cause != nil {
			return fmt.Sprintf("%s: %v", ae.Message, ae.Cause)
		}
		return ae.Message
	}
}
