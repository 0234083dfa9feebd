package analysis

import "strings"

type Type string

const (
	TypeVocab   Type = "vocab"
	TypeGrammar Type = "grammar"
	TypeReading Type = "reading"
	TypeUnknown Type = "unknown"
)

// Label is the badge text shown next to a result.
func (t Type) Label() string {
	switch t {
	case TypeVocab:
		return "文字・词汇"
	case TypeGrammar:
		return "文法"
	case TypeReading:
		return "读解"
	default:
		return "AI分析结果"
	}
}

// Classify tags a question by keyword. First match wins; the result only
// drives a cosmetic badge.
func Classify(transcript, analysis string) Type {
	switch {
	case strings.Contains(transcript, "読み方") ||
		strings.Contains(analysis, "词汇") || strings.Contains(analysis, "文字"):
		return TypeVocab
	case strings.Contains(transcript, "文法") || strings.Contains(analysis, "语法"):
		return TypeGrammar
	case strings.Contains(analysis, "读解") || strings.Contains(analysis, "文章"):
		return TypeReading
	default:
		return TypeUnknown
	}
}
