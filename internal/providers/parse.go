package providers

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Reply is a model's answer after loose parsing.
type Reply struct {
	Answer     string
	Answers    []string
	Reason     string
	Confidence float64
	Raw        string
}

// TryParseReply normalizes LLM output.
// Priorities: JSON -> code fence JSON -> first JSON object -> "答案:"/"Answer:" line -> bare letter/boolean -> raw.
func TryParseReply(content string) Reply {
	r := Reply{Raw: strings.TrimSpace(content)}

	if tryJSON(content, &r) {
		return r.normalized()
	}
	if s := extractCodeFenceJSON(content); s != "" && tryJSON(s, &r) {
		return r.normalized()
	}
	if s := extractFirstJSONObject(content); s != "" && tryJSON(s, &r) {
		return r.normalized()
	}
	if a, reason := parseColonStyle(content); a != "" {
		r.Answer, r.Reason = a, reason
		return r.normalized()
	}
	if a := parseSimpleFinal(content); a != "" {
		r.Answer = a
		return r.normalized()
	}
	r.Answer = truncateSingleLine(r.Raw, 500)
	return r.normalized()
}

// Values returns the answer as a list, preferring an explicit JSON array.
func (r Reply) Values() []string {
	if len(r.Answers) > 0 {
		return r.Answers
	}
	if r.Answer == "" {
		return nil
	}
	return []string{r.Answer}
}

func tryJSON(s string, out *Reply) bool {
	var m map[string]any
	if json.Unmarshal([]byte(strings.TrimSpace(s)), &m) != nil {
		return false
	}
	switch v := m["answer"].(type) {
	case nil:
	case []any:
		for _, it := range v {
			out.Answers = append(out.Answers, str(it))
		}
		out.Answer = strings.Join(out.Answers, ",")
	default:
		out.Answer = str(v)
	}
	if v, ok := m["reason"]; ok {
		out.Reason = str(v)
	}
	if v, ok := m["confidence"]; ok {
		out.Confidence = toFloat(v)
	}
	return out.Answer != ""
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return formatFloat(t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

func formatFloat(f float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.6f", f), "0"), ".")
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return f
		}
	}
	return 0
}

var rxFence = regexp.MustCompile("(?is)```(?:json)?\\s*(\\{[\\s\\S]*?\\})\\s*```")

func extractCodeFenceJSON(s string) string {
	if m := rxFence.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return ""
}

// find the first JSON object by simple brace balancing
func extractFirstJSONObject(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	level := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			level++
		case '}':
			level--
			if level == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

var (
	rxAnsColon = regexp.MustCompile(`(?im)^\s*(?:answer|正确答案|答案)\s*[:：]\s*(.+)$`)
	rxReaColon = regexp.MustCompile(`(?im)^\s*(?:reason|解析|理由)\s*[:：]\s*(.+)$`)
)

func parseColonStyle(s string) (answer, reason string) {
	if m := rxAnsColon.FindStringSubmatch(s); len(m) > 1 {
		answer = strings.TrimSpace(m[1])
	}
	if m := rxReaColon.FindStringSubmatch(s); len(m) > 1 {
		reason = strings.TrimSpace(m[1])
	}
	return
}

var (
	rxLetters = regexp.MustCompile(`\b([A-Z]{1,8})\b`)
	rxBool    = regexp.MustCompile(`(?i)\b(true|false)\b`)
	rxFinal   = regexp.MustCompile(`(?i:\b(?:final|answer)\b)[:：]?\s*([A-Z]{1,8}|(?i:true|false))\b`)
)

func parseSimpleFinal(s string) string {
	if m := rxFinal.FindStringSubmatch(s); len(m) > 1 {
		return normalizeToken(m[1])
	}
	if m := rxBool.FindStringSubmatch(s); len(m) > 1 {
		return normalizeToken(m[1])
	}
	// a bare letter run only counts in a short reply
	if len(strings.TrimSpace(s)) > 16 {
		return ""
	}
	if m := rxLetters.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return ""
}

func normalizeToken(t string) string {
	switch l := strings.ToLower(strings.TrimSpace(t)); l {
	case "true", "false":
		return l
	default:
		return strings.ToUpper(t)
	}
}

func truncateSingleLine(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > max {
		return s[:max] + "…"
	}
	return s
}

func (r Reply) normalized() Reply {
	r.Answer = strings.TrimSpace(r.Answer)
	for i := range r.Answers {
		r.Answers[i] = strings.TrimSpace(r.Answers[i])
	}
	return r
}
