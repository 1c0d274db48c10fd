package providers

import (
	"context"
	"strings"
	"time"

	"github.com/emandor/lemme_search/internal/matcher"
	"github.com/emandor/lemme_search/internal/model"
)

type llmConfig struct {
	Key     string `json:"key"`
	Model   string `json:"model"`
	BaseURL string `json:"base_url"`
}

// completer sends one prompt and returns the model's raw text.
type completer func(ctx context.Context, cfg llmConfig, prompt string) (string, error)

// llm adapts a chat model to the adapter contract: prompt, parse, reconcile.
type llm struct {
	name         string
	home         string
	defaultModel string
	defaultBase  string
	http         *HTTPClient
	m            *matcher.Matcher
	complete     completer
}

func (a *llm) Name() string    { return a.name }
func (a *llm) Cacheable() bool { return true }

func (a *llm) Describe() Info {
	return Info{
		Name: a.name, Home: a.home, Free: false, Pay: true,
		Fields: []ConfigField{
			{Name: "key", Title: "API key", Required: true},
			{Name: "model", Title: "Model", Description: "defaults to " + a.defaultModel},
			{Name: "base_url", Title: "Base URL", Description: "defaults to " + a.defaultBase},
		},
	}
}

func (a *llm) ValidateConfig(raw map[string]any) error {
	_, err := a.config(raw)
	return err
}

func (a *llm) config(raw map[string]any) (llmConfig, error) {
	var cfg llmConfig
	if err := decodeConfig(raw, &cfg); err != nil {
		return cfg, err
	}
	if err := required(map[string]string{"key": cfg.Key}); err != nil {
		return cfg, err
	}
	if cfg.Model == "" {
		cfg.Model = a.defaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = a.defaultBase
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg, nil
}

func (a *llm) Search(ctx context.Context, q model.Query, req model.ProviderRequest) model.Answer {
	return guard(a.name, q, func() (model.Answer, error) {
		cfg, err := a.config(req.Config)
		if err != nil {
			return model.Answer{}, err
		}

		t0 := time.Now()
		text, err := a.complete(ctx, cfg, BuildPrompt(q))
		if err != nil {
			return model.Answer{}, err
		}
		if strings.TrimSpace(text) == "" {
			return model.Answer{}, apiErrorf("%s: empty text", strings.ToLower(a.name))
		}
		reply := TryParseReply(text)
		lg := logger()
		lg.Debug().Str("provider", a.name).Str("model", cfg.Model).
			Int64("latency_ms", time.Since(t0).Milliseconds()).Str("answer", reply.Answer).Msg("llm_reply")

		return replyAnswer(a.m, q, reply)
	})
}

// replyAnswer shapes a parsed reply into the payload the question type wants.
func replyAnswer(m *matcher.Matcher, q model.Query, r Reply) (model.Answer, error) {
	switch {
	case q.Type.IsChoice():
		var keys []string
		for _, v := range r.Values() {
			if ks := splitKeys(v); ks != nil {
				keys = append(keys, ks...)
			} else {
				keys = append(keys, v)
			}
		}
		return choiceAnswer(m, q, keys, r.Answer)
	case q.Type == model.TrueFalse:
		return judgementAnswer(r.Answer)
	case len(r.Answers) > 0:
		return textAnswer(q, r.Answers)
	case q.Type == model.FillBlank:
		return textAnswer(q, splitText(r.Answer))
	default:
		return textAnswer(q, []string{r.Answer})
	}
}
