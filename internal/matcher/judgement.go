package matcher

import "strings"

var (
	trueWords  = []string{"正确", "对", "是", "√", "✓", "t", "true", "yes", "y", "1"}
	falseWords = []string{"错误", "错", "否", "×", "✗", "f", "false", "no", "n", "0", "不对", "不正确"}
)

// ParseJudgement maps the many ways providers spell true/false. The second
// return is false when the text is not recognisable.
func ParseJudgement(s string) (bool, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return false, false
	}
	// exact hits first, "不正确" contains "正确"
	for _, w := range falseWords {
		if s == w {
			return false, true
		}
	}
	for _, w := range trueWords {
		if s == w {
			return true, true
		}
	}
	for _, w := range []string{"不正确", "不对", "错误", "错", "×", "✗", "false"} {
		if strings.Contains(s, w) {
			return false, true
		}
	}
	for _, w := range []string{"正确", "对", "√", "✓", "true"} {
		if strings.Contains(s, w) {
			return true, true
		}
	}
	return false, false
}
