package aggregate

import (
	"sort"
	"strings"

	"github.com/emandor/lemme_search/internal/matcher"
	"github.com/emandor/lemme_search/internal/model"
)

// TextSeparator joins several answer texts into one string.
const TextSeparator = "#@#"

// Aggregate votes over the successful answers. Choice sets compare without
// order, texts after normalization. The most frequent key wins; on a tie the
// key seen first wins. Nil means no successful answer.
func Aggregate(q model.Query, answers []model.Answer) *model.UnifiedAnswer {
	type tally struct {
		count int
		rep   model.Answer
	}
	tallies := map[string]*tally{}
	var order []string

	for _, a := range answers {
		if !a.Success || !a.HasPayload() {
			continue
		}
		k, ok := canonicalKey(a)
		if !ok {
			continue
		}
		t, seen := tallies[k]
		if !seen {
			t = &tally{rep: a}
			tallies[k] = t
			order = append(order, k)
		}
		t.count++
	}
	if len(order) == 0 {
		return nil
	}

	best := tallies[order[0]]
	for _, k := range order[1:] {
		if t := tallies[k]; t.count > best.count {
			best = t
		}
	}
	return unify(q, best.rep)
}

// Summarize builds the report returned for one search.
func Summarize(q model.Query, answers []model.Answer) model.Report {
	r := model.Report{
		Query:           q,
		UnifiedAnswer:   Aggregate(q, answers),
		ProviderAnswers: answers,
		TotalProviders:  len(answers),
	}
	if r.ProviderAnswers == nil {
		r.ProviderAnswers = []model.Answer{}
	}
	for _, a := range answers {
		if a.Success {
			r.SuccessfulProviders++
		} else {
			r.FailedProviders++
		}
	}
	return r
}

func canonicalKey(a model.Answer) (string, bool) {
	switch {
	case len(a.Choice) > 0:
		keys := sortedKeys(a.Choice)
		if len(keys) == 0 {
			return "", false
		}
		return "c:" + strings.Join(keys, ","), true
	case a.Judgement != nil:
		if *a.Judgement {
			return "j:T", true
		}
		return "j:F", true
	case len(a.Text) > 0:
		parts := make([]string, len(a.Text))
		for i, t := range a.Text {
			parts[i] = matcher.NormalizeText(t)
		}
		return "t:" + strings.Join(parts, "\x1f"), true
	}
	return "", false
}

// sortedKeys upper-cases, dedupes and sorts option letters, dropping anything
// that is not a single letter.
func sortedKeys(choice []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range choice {
		if model.OptionIndex(c) < 0 {
			continue
		}
		k := strings.ToUpper(strings.TrimSpace(c))
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func unify(q model.Query, rep model.Answer) *model.UnifiedAnswer {
	switch {
	case len(rep.Choice) > 0:
		return fromKeys(q, sortedKeys(rep.Choice))
	case rep.Judgement != nil:
		return fromJudgement(q, *rep.Judgement)
	default:
		return &model.UnifiedAnswer{
			AnswerKey:   []string{},
			AnswerIndex: []int{},
			AnswerText:  strings.Join(rep.Text, TextSeparator),
			BestAnswer:  append([]string(nil), rep.Text...),
		}
	}
}

// fromKeys drops keys that name no option of q, so every field describes
// the same options.
func fromKeys(q model.Query, keys []string) *model.UnifiedAnswer {
	u := &model.UnifiedAnswer{
		AnswerKey:   make([]string, 0, len(keys)),
		AnswerIndex: make([]int, 0, len(keys)),
		BestAnswer:  []string{},
	}
	for _, k := range keys {
		i := model.OptionIndex(k)
		if i < 0 || i >= len(q.Options) {
			continue
		}
		u.AnswerKey = append(u.AnswerKey, k)
		u.AnswerIndex = append(u.AnswerIndex, i)
		u.BestAnswer = append(u.BestAnswer, q.Options[i])
	}
	u.AnswerKeyText = strings.Join(u.AnswerKey, "")
	u.AnswerText = strings.Join(u.BestAnswer, TextSeparator)
	return u
}

// fromJudgement points at the matching option when the question spells
// true/false as options, otherwise it reports the word itself.
func fromJudgement(q model.Query, v bool) *model.UnifiedAnswer {
	for i, o := range q.Options {
		if ov, ok := matcher.ParseJudgement(o); ok && ov == v {
			return fromKeys(q, []string{model.OptionKey(i)})
		}
	}
	word := "错误"
	if v {
		word = "正确"
	}
	return &model.UnifiedAnswer{
		AnswerKey:   []string{},
		AnswerIndex: []int{},
		AnswerText:  word,
		BestAnswer:  []string{word},
	}
}
