// Package matcher reconciles free-text provider answers with the caller's
// enumerated options.
package matcher

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/emandor/lemme_search/internal/model"
)

var ErrNoMatch = errors.New("answer does not match any option")

// Config holds the scoring tunables.
type Config struct {
	// Threshold is the acceptance bar for MultiChoice picks.
	Threshold float64
	// FallbackFactor scales Threshold for the single best pick.
	FallbackFactor float64
	// AnswerInOption weights containment of the answer inside an option.
	AnswerInOption float64
	// OptionInAnswer weights containment of an option inside the answer.
	OptionInAnswer float64
	JaccardWeight  float64
	LCSWeight      float64
}

var DefaultConfig = Config{
	Threshold:      0.5,
	FallbackFactor: 0.6,
	AnswerInOption: 0.95,
	OptionInAnswer: 0.9,
	JaccardWeight:  0.4,
	LCSWeight:      0.6,
}

type Matcher struct {
	cfg Config
}

func New(cfg Config) *Matcher {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultConfig.Threshold
	}
	if cfg.FallbackFactor <= 0 {
		cfg.FallbackFactor = DefaultConfig.FallbackFactor
	}
	if cfg.AnswerInOption <= 0 {
		cfg.AnswerInOption = DefaultConfig.AnswerInOption
	}
	if cfg.OptionInAnswer <= 0 {
		cfg.OptionInAnswer = DefaultConfig.OptionInAnswer
	}
	if cfg.JaccardWeight <= 0 && cfg.LCSWeight <= 0 {
		cfg.JaccardWeight, cfg.LCSWeight = DefaultConfig.JaccardWeight, DefaultConfig.LCSWeight
	}
	return &Matcher{cfg: cfg}
}

// Reconcile resolves raw keys or raw text to a sorted set of option indices.
// Keys win when every one of them is a valid in-range letter; otherwise the
// text (or the keys joined) is scored against each option.
func (m *Matcher) Reconcile(rawKeys []string, rawText string, options []string, qt model.QuestionType) ([]int, error) {
	if len(options) == 0 {
		return nil, fmt.Errorf("%w: question has no options", ErrNoMatch)
	}
	if idx, ok := keysToIndices(rawKeys, len(options)); ok {
		return idx, nil
	}

	text := strings.TrimSpace(rawText)
	if text == "" {
		text = strings.TrimSpace(strings.Join(rawKeys, " "))
	}
	if text == "" {
		return nil, fmt.Errorf("%w: empty answer", ErrNoMatch)
	}

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(options))
	for i, o := range options {
		scores[i] = scored{i, m.Score(text, o)}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	best := scores[0]
	fallback := m.cfg.Threshold * m.cfg.FallbackFactor

	var picked []int
	if qt == model.MultiChoice {
		for _, s := range scores {
			if s.score >= m.cfg.Threshold {
				picked = append(picked, s.idx)
			}
		}
		if len(picked) == 0 && best.score >= fallback {
			picked = []int{best.idx}
		}
	} else if best.score >= fallback {
		picked = []int{best.idx}
	}

	if len(picked) == 0 {
		return nil, fmt.Errorf("%w: best score %.2f", ErrNoMatch, best.score)
	}
	sort.Ints(picked)
	return picked, nil
}

// Keys converts indices back to option letters.
func Keys(indices []int) []string {
	out := make([]string, len(indices))
	for i, idx := range indices {
		out[i] = model.OptionKey(idx)
	}
	return out
}

// Score rates how well answer matches option, 0..1.
func (m *Matcher) Score(answer, option string) float64 {
	a := []rune(normalizeForMatch(answer))
	o := []rune(normalizeForMatch(option))
	if len(a) == 0 || len(o) == 0 {
		return 0
	}
	as, os := string(a), string(o)
	if as == os {
		return 1
	}
	if strings.Contains(os, as) {
		return float64(len(a)) / float64(len(o)) * m.cfg.AnswerInOption
	}
	if strings.Contains(as, os) {
		return float64(len(o)) / float64(len(a)) * m.cfg.OptionInAnswer
	}

	jaccard := jaccard(a, o)
	lcs := float64(longestCommonSubstring(a, o)) / float64(max(len(a), len(o)))
	return jaccard*m.cfg.JaccardWeight + lcs*m.cfg.LCSWeight
}

// keysToIndices accepts "A", "a", "A.", "(A)" and ascending letter runs like
// "ACD". A run that is not strictly ascending is treated as a word.
func keysToIndices(keys []string, n int) ([]int, bool) {
	if len(keys) == 0 {
		return nil, false
	}
	seen := map[int]bool{}
	var out []int
	for _, k := range keys {
		k = strings.Trim(strings.ToUpper(strings.TrimSpace(k)), ".、,，()（）")
		if k == "" || len(k) > n {
			return nil, false
		}
		last := rune(0)
		for _, r := range k {
			i := int(r - 'A')
			if r < 'A' || r > 'Z' || i >= n || r <= last {
				return nil, false
			}
			last = r
			if !seen[i] {
				seen[i] = true
				out = append(out, i)
			}
		}
	}
	sort.Ints(out)
	return out, true
}

func jaccard(a, b []rune) float64 {
	sa := make(map[rune]struct{}, len(a))
	for _, r := range a {
		sa[r] = struct{}{}
	}
	sb := make(map[rune]struct{}, len(b))
	for _, r := range b {
		sb[r] = struct{}{}
	}
	inter := 0
	for r := range sa {
		if _, ok := sb[r]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func longestCommonSubstring(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	best := 0
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
				if curr[j] > best {
					best = curr[j]
				}
			} else {
				curr[j] = 0
			}
		}
		prev, curr = curr, prev
	}
	return best
}
