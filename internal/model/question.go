package model

import "strings"

// QuestionType mirrors the wire enum 0..4.
type QuestionType int

const (
	SingleChoice QuestionType = iota
	MultiChoice
	FillBlank
	TrueFalse
	OpenAnswer
)

func (t QuestionType) Valid() bool { return t >= SingleChoice && t <= OpenAnswer }

func (t QuestionType) IsChoice() bool { return t == SingleChoice || t == MultiChoice }

func (t QuestionType) String() string {
	switch t {
	case SingleChoice:
		return "single_choice"
	case MultiChoice:
		return "multi_choice"
	case FillBlank:
		return "fill_blank"
	case TrueFalse:
		return "true_false"
	case OpenAnswer:
		return "open_answer"
	default:
		return "unknown"
	}
}

// Query is the caller's question. Treat it as immutable once built.
type Query struct {
	Content string       `json:"content"`
	Options []string     `json:"options,omitempty"`
	Type    QuestionType `json:"type"`
}

func (q Query) HasOptions() bool { return len(q.Options) > 0 }

// OptionKey returns the letter for option index i ("A" for 0).
func OptionKey(i int) string { return string(rune('A' + i)) }

// OptionIndex converts a single upper-case letter back to its index, or -1.
func OptionIndex(key string) int {
	key = strings.TrimSpace(strings.ToUpper(key))
	if len(key) != 1 || key[0] < 'A' || key[0] > 'Z' {
		return -1
	}
	return int(key[0] - 'A')
}

// ProviderRequest names a registered adapter and carries its already merged config.
type ProviderRequest struct {
	Name     string         `json:"name"`
	Priority int            `json:"priority,omitempty"`
	Config   map[string]any `json:"config,omitempty"`
}
