package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/emandor/lemme_search/internal/matcher"
	"github.com/emandor/lemme_search/internal/model"
)

const wannengBase = "http://lyck6.cn/scriptService/api/autoAnswer"

type wannengConfig struct {
	Token    string `json:"token"`
	Location string `json:"location"`
	BaseURL  string `json:"base_url"`
}

type wannengRequest struct {
	Question string             `json:"question"`
	Options  []string           `json:"options"`
	Type     model.QuestionType `json:"type"`
	Location string             `json:"location,omitempty"`
}

type wannengResponse struct {
	Code    *int   `json:"code"`
	Message string `json:"message"`
	Result  *struct {
		Success bool            `json:"success"`
		Answers json.RawMessage `json:"answers"`
	} `json:"result"`
}

// Wanneng queries the 万能题库 bank. Choice answers come back as option
// indices when the bank has an exact hit, otherwise as similar-question text.
type Wanneng struct {
	http *HTTPClient
	m    *matcher.Matcher
}

func NewWanneng(h *HTTPClient, m *matcher.Matcher) *Wanneng {
	return &Wanneng{http: h, m: m}
}

func (w *Wanneng) Name() string    { return "万能题库" }
func (w *Wanneng) Cacheable() bool { return true }

func (w *Wanneng) Describe() Info {
	return Info{
		Home: "https://lyck6.cn/pay", Free: true, Pay: true,
		Fields: []ConfigField{
			{Name: "token", Title: "token密钥", Description: "用于认证的token密钥", Required: true},
			{Name: "location", Title: "题目来源", Description: "题目来源URL（可选）"},
		},
	}
}

func (w *Wanneng) ValidateConfig(raw map[string]any) error {
	_, err := w.config(raw)
	return err
}

func (w *Wanneng) config(raw map[string]any) (wannengConfig, error) {
	var cfg wannengConfig
	if err := decodeConfig(raw, &cfg); err != nil {
		return cfg, err
	}
	if err := required(map[string]string{"token": cfg.Token}); err != nil {
		return cfg, err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = wannengBase
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg, nil
}

func (w *Wanneng) Search(ctx context.Context, q model.Query, req model.ProviderRequest) model.Answer {
	return guard(w.Name(), q, func() (model.Answer, error) {
		cfg, err := w.config(req.Config)
		if err != nil {
			return model.Answer{}, err
		}
		body, err := json.Marshal(wannengRequest{
			Question: q.Content, Options: q.Options, Type: q.Type, Location: cfg.Location,
		})
		if err != nil {
			return model.Answer{}, err
		}
		endpoint := cfg.BaseURL + "/" + url.PathEscape(cfg.Token)
		raw, err := w.http.Do(ctx, w.Name(), func(ctx context.Context) (*http.Request, error) {
			r, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
			if err != nil {
				return nil, err
			}
			r.Header.Set("Content-Type", "application/json")
			return r, nil
		})
		if err != nil {
			return model.Answer{}, err
		}

		var resp wannengResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return model.Answer{}, err
		}
		if resp.Code == nil || *resp.Code != 0 {
			msg := resp.Message
			if msg == "" {
				msg = "API返回错误"
			}
			return model.Answer{}, apiErrorf("%s", msg)
		}
		if resp.Result == nil {
			return model.Answer{}, apiErrorf("API返回数据为空")
		}
		values, err := wannengValues(resp.Result.Answers, resp.Result.Success)
		if err != nil {
			return model.Answer{}, err
		}
		return w.answer(q, values)
	})
}

// wannengValues flattens the answers field. Without an exact hit the bank
// returns answers of similar questions and only the first one is used.
func wannengValues(raw json.RawMessage, exact bool) ([]any, error) {
	var v any
	if len(raw) == 0 || json.Unmarshal(raw, &v) != nil || v == nil {
		return nil, apiErrorf("未找到答案")
	}
	list, ok := v.([]any)
	if !ok {
		return []any{v}, nil
	}
	if len(list) == 0 {
		return nil, apiErrorf("未找到答案")
	}
	if !exact {
		if inner, ok := list[0].([]any); ok {
			return inner, nil
		}
		return list[:1], nil
	}
	return list, nil
}

func (w *Wanneng) answer(q model.Query, values []any) (model.Answer, error) {
	switch {
	case q.Type.IsChoice():
		var keys []string
		var texts []string
		for _, v := range values {
			switch t := v.(type) {
			case float64:
				idx := int(t)
				if idx < 0 || (q.HasOptions() && idx >= len(q.Options)) {
					return model.Answer{}, apiErrorf("option index %d out of range", idx)
				}
				keys = append(keys, model.OptionKey(idx))
			default:
				s := str(t)
				keys = append(keys, s)
				texts = append(texts, s)
			}
		}
		return choiceAnswer(w.m, q, keys, strings.Join(texts, " "))

	case q.Type == model.TrueFalse:
		switch t := values[0].(type) {
		case bool:
			return model.JudgementAnswer("", t), nil
		case float64:
			return model.JudgementAnswer("", t != 0), nil
		default:
			return judgementAnswer(str(t))
		}

	default:
		parts := make([]string, 0, len(values))
		for _, v := range values {
			parts = append(parts, str(v))
		}
		return textAnswer(q, parts)
	}
}
