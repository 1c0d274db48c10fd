package model

// ErrorKind classifies a failed provider answer.
type ErrorKind string

const (
	ErrConfig    ErrorKind = "config_error"
	ErrNetwork   ErrorKind = "network_error"
	ErrAPI       ErrorKind = "api_error"
	ErrMatch     ErrorKind = "match_error"
	ErrCacheMiss ErrorKind = "cache_miss"
	ErrUnknown   ErrorKind = "unknown"
)

// Answer is one provider's reply. Either a payload (Choice, Judgement or Text)
// is present and Success is true, or ErrorKind/ErrorMessage are set and the
// payload is empty.
type Answer struct {
	Provider     string       `json:"provider"`
	Type         QuestionType `json:"type"`
	Choice       []string     `json:"choice,omitempty"`
	Judgement    *bool        `json:"judgement,omitempty"`
	Text         []string     `json:"text,omitempty"`
	Success      bool         `json:"success"`
	ErrorKind    ErrorKind    `json:"error_type,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`
	FromCache    bool         `json:"from_cache,omitempty"`
}

// HasPayload reports whether exactly the success side of the invariant holds.
func (a Answer) HasPayload() bool {
	return len(a.Choice) > 0 || a.Judgement != nil || len(a.Text) > 0
}

func Failure(provider string, t QuestionType, kind ErrorKind, msg string) Answer {
	return Answer{Provider: provider, Type: t, ErrorKind: kind, ErrorMessage: msg}
}

// ChoiceAnswer builds a choice answer for a question of type qt. The type is
// corrected to MultiChoice when more than one key was picked.
func ChoiceAnswer(provider string, qt QuestionType, keys []string) Answer {
	t := qt
	if !t.IsChoice() {
		t = SingleChoice
	}
	if len(keys) > 1 {
		t = MultiChoice
	}
	return Answer{Provider: provider, Type: t, Choice: keys, Success: true}
}

func JudgementAnswer(provider string, v bool) Answer {
	return Answer{Provider: provider, Type: TrueFalse, Judgement: &v, Success: true}
}

func TextAnswer(provider string, t QuestionType, text []string) Answer {
	return Answer{Provider: provider, Type: t, Text: text, Success: true}
}

// UnifiedAnswer is the consensus derived from successful answers. Never stored.
type UnifiedAnswer struct {
	AnswerKey     []string `json:"answerKey"`
	AnswerKeyText string   `json:"answerKeyText"`
	AnswerIndex   []int    `json:"answerIndex"`
	AnswerText    string   `json:"answerText"`
	BestAnswer    []string `json:"bestAnswer"`
}

// Report is what the HTTP layer returns for one search.
type Report struct {
	Query               Query          `json:"query"`
	UnifiedAnswer       *UnifiedAnswer `json:"unified_answer"`
	ProviderAnswers     []Answer       `json:"provider_answers"`
	SuccessfulProviders int            `json:"successful_providers"`
	FailedProviders     int            `json:"failed_providers"`
	TotalProviders      int            `json:"total_providers"`
}
