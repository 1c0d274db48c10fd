package providers

import (
	"strings"

	"github.com/emandor/lemme_search/internal/model"
)

// JSONInstruction makes all LLMs reply in single-line JSON, no code fence.
const JSONInstruction = `Return ONLY a single-line JSON object with keys:
"answer": string or array of strings,
"reason": string (optional, brief).
No Markdown, no code fences, no extra text. Reply in the language of the question.`

func typeHint(t model.QuestionType) string {
	switch t {
	case model.SingleChoice:
		return `This is a single-choice question. "answer" is exactly one option letter, e.g. "B".`
	case model.MultiChoice:
		return `This is a multiple-choice question. "answer" is an array of every correct option letter, e.g. ["A","C"].`
	case model.TrueFalse:
		return `This is a true/false question. "answer" is "true" or "false".`
	case model.FillBlank:
		return `This is a fill-in-the-blank question. "answer" is an array with one entry per blank, in order.`
	default:
		return `This is an open question. "answer" is a short answer text.`
	}
}

// BuildPrompt renders q with lettered options.
func BuildPrompt(q model.Query) string {
	var b strings.Builder
	b.WriteString(JSONInstruction)
	b.WriteString("\n\n")
	b.WriteString(typeHint(q.Type))
	b.WriteString("\n\nQuestion:\n")
	b.WriteString(strings.TrimSpace(q.Content))
	b.WriteString("\n")
	if q.HasOptions() {
		b.WriteString("\nOptions:\n")
		for i, o := range q.Options {
			b.WriteString(model.OptionKey(i))
			b.WriteString(". ")
			b.WriteString(strings.TrimSpace(o))
			b.WriteByte('\n')
		}
	}
	return b.String()
}
