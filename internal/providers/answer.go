package providers

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/emandor/lemme_search/internal/matcher"
	"github.com/emandor/lemme_search/internal/model"
)

var (
	rxKeyOnly   = regexp.MustCompile(`^[A-Z\s,，、;；/|()（）.]+$`)
	rxKeyPrefix = regexp.MustCompile(`^(?:正确答案|答案)\s*[:：]\s*`)
)

// splitKeys returns the letters of a key-only reply like "A、C" or "BD", or
// nil when s carries anything else.
func splitKeys(s string) []string {
	s = strings.TrimSpace(rxKeyPrefix.ReplaceAllString(strings.TrimSpace(s), ""))
	if s == "" {
		return nil
	}
	if !rxKeyOnly.MatchString(s) {
		// a lone lower-case letter like "b" still counts
		up := strings.ToUpper(s)
		if !rxKeyOnly.MatchString(up) || strings.IndexFunc(up, isLetter) != strings.LastIndexFunc(up, isLetter) {
			return nil
		}
		s = up
	}
	seen := map[rune]bool{}
	var out []string
	for _, r := range s {
		if r >= 'A' && r <= 'Z' && !seen[r] {
			seen[r] = true
			out = append(out, string(r))
		}
	}
	return out
}

func isLetter(r rune) bool { return r >= 'A' && r <= 'Z' }

// choiceAnswer reconciles raw keys and text against the options of q.
func choiceAnswer(m *matcher.Matcher, q model.Query, keys []string, text string) (model.Answer, error) {
	if q.HasOptions() {
		idx, err := m.Reconcile(keys, text, q.Options, q.Type)
		if err != nil {
			return model.Answer{}, err
		}
		return model.ChoiceAnswer("", q.Type, matcher.Keys(idx)), nil
	}
	var letters []string
	for _, k := range keys {
		letters = append(letters, splitKeys(k)...)
	}
	if len(letters) == 0 {
		return model.Answer{}, fmt.Errorf("%w: %q has no option letters", matcher.ErrNoMatch, text)
	}
	return model.ChoiceAnswer("", q.Type, letters), nil
}

func judgementAnswer(s string) (model.Answer, error) {
	v, ok := matcher.ParseJudgement(s)
	if !ok {
		return model.Answer{}, apiErrorf("unrecognized judgement %q", truncate(s, 80))
	}
	return model.JudgementAnswer("", v), nil
}

func textAnswer(q model.Query, parts []string) (model.Answer, error) {
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return model.Answer{}, apiErrorf("empty answer")
	}
	t := q.Type
	if t != model.FillBlank {
		t = model.OpenAnswer
	}
	return model.TextAnswer("", t, out), nil
}

var textSeparators = []string{"#@#", "#", "|", ";", "；", "、"}

// splitText splits a multi-blank answer on the first separator it contains.
func splitText(s string) []string {
	for _, sep := range textSeparators {
		if !strings.Contains(s, sep) {
			continue
		}
		var parts []string
		for _, p := range strings.Split(s, sep) {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if len(parts) > 0 {
			return parts
		}
	}
	return []string{strings.TrimSpace(s)}
}
