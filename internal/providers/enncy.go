package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/emandor/lemme_search/internal/matcher"
	"github.com/emandor/lemme_search/internal/model"
)

const enncyBase = "https://tk.enncy.cn/query"

var enncyTypes = map[model.QuestionType]string{
	model.SingleChoice: "single",
	model.MultiChoice:  "multiple",
	model.FillBlank:    "completion",
	model.TrueFalse:    "judgement",
	model.OpenAnswer:   "completion",
}

type enncyConfig struct {
	Token   string `json:"token"`
	BaseURL string `json:"base_url"`
}

type enncyResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    *struct {
		Answer string `json:"answer"`
		AI     bool   `json:"ai"`
	} `json:"data"`
}

// Enncy queries the 言溪题库 bank, which answers with a single string.
type Enncy struct {
	http *HTTPClient
	m    *matcher.Matcher
}

func NewEnncy(h *HTTPClient, m *matcher.Matcher) *Enncy {
	return &Enncy{http: h, m: m}
}

func (e *Enncy) Name() string    { return "言溪题库" }
func (e *Enncy) Cacheable() bool { return true }

func (e *Enncy) Describe() Info {
	return Info{
		Home: "https://tk.enncy.cn/", Free: true, Pay: true,
		Fields: []ConfigField{
			{Name: "token", Title: "用户凭证", Description: "用户token，从题库个人中心获取", Required: true},
		},
	}
}

func (e *Enncy) ValidateConfig(raw map[string]any) error {
	_, err := e.config(raw)
	return err
}

func (e *Enncy) config(raw map[string]any) (enncyConfig, error) {
	var cfg enncyConfig
	if err := decodeConfig(raw, &cfg); err != nil {
		return cfg, err
	}
	if err := required(map[string]string{"token": cfg.Token}); err != nil {
		return cfg, err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = enncyBase
	}
	return cfg, nil
}

func (e *Enncy) Search(ctx context.Context, q model.Query, req model.ProviderRequest) model.Answer {
	return guard(e.Name(), q, func() (model.Answer, error) {
		cfg, err := e.config(req.Config)
		if err != nil {
			return model.Answer{}, err
		}
		params := url.Values{}
		params.Set("token", cfg.Token)
		params.Set("title", q.Content)
		if q.HasOptions() {
			params.Set("options", strings.Join(q.Options, "\n"))
		}
		params.Set("type", enncyTypes[q.Type])
		endpoint := cfg.BaseURL + "?" + params.Encode()

		raw, err := e.http.Do(ctx, e.Name(), func(ctx context.Context) (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		})
		if err != nil {
			return model.Answer{}, err
		}

		var resp enncyResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return model.Answer{}, err
		}
		if resp.Code != 1 {
			msg := resp.Message
			if msg == "" {
				msg = "未找到答案"
			}
			return model.Answer{}, apiErrorf("%s", msg)
		}
		if resp.Data == nil || strings.TrimSpace(resp.Data.Answer) == "" {
			return model.Answer{}, apiErrorf("未找到答案")
		}
		return e.answer(q, resp.Data.Answer)
	})
}

func (e *Enncy) answer(q model.Query, ans string) (model.Answer, error) {
	switch {
	case q.Type.IsChoice():
		if keys := splitKeys(ans); keys != nil {
			return choiceAnswer(e.m, q, keys, "")
		}
		text := strings.TrimSpace(rxKeyPrefix.ReplaceAllString(strings.TrimSpace(ans), ""))
		return choiceAnswer(e.m, q, nil, strings.ReplaceAll(text, "#@#", " "))
	case q.Type == model.TrueFalse:
		return judgementAnswer(ans)
	default:
		return textAnswer(q, splitText(ans))
	}
}
