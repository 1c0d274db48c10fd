package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/emandor/lemme_search/internal/matcher"
)

func NewAnthropic(h *HTTPClient, m *matcher.Matcher) Adapter {
	a := &llm{
		name:         "CLAUDE",
		home:         "https://console.anthropic.com",
		defaultModel: "claude-3-5-sonnet-latest",
		defaultBase:  "https://api.anthropic.com/v1",
		http:         h,
		m:            m,
	}
	a.complete = func(ctx context.Context, cfg llmConfig, prompt string) (string, error) {
		b, err := json.Marshal(map[string]any{
			"model":      cfg.Model,
			"max_tokens": 512,
			"messages": []map[string]any{
				{"role": "user", "content": prompt},
			},
		})
		if err != nil {
			return "", err
		}
		raw, err := h.Do(ctx, a.name, func(ctx context.Context) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/messages", bytes.NewReader(b))
			if err != nil {
				return nil, err
			}
			req.Header.Set("x-api-key", cfg.Key)
			req.Header.Set("anthropic-version", "2023-06-01")
			req.Header.Set("Content-Type", "application/json")
			return req, nil
		})
		if err != nil {
			return "", err
		}

		var out struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return "", err
		}
		for _, c := range out.Content {
			if c.Text != "" {
				return c.Text, nil
			}
		}
		return "", apiErrorf("anthropic empty content")
	}
	return a
}
