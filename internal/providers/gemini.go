package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/emandor/lemme_search/internal/matcher"
)

func NewGemini(h *HTTPClient, m *matcher.Matcher) Adapter {
	a := &llm{
		name:         "GEMINI",
		home:         "https://aistudio.google.com",
		defaultModel: "gemini-2.5-flash",
		defaultBase:  "https://generativelanguage.googleapis.com/v1beta",
		http:         h,
		m:            m,
	}
	a.complete = func(ctx context.Context, cfg llmConfig, prompt string) (string, error) {
		b, err := json.Marshal(map[string]any{
			"contents": []any{
				map[string]any{
					"role":  "user",
					"parts": []any{map[string]string{"text": prompt}},
				},
			},
			"generationConfig": map[string]any{
				"temperature":      0.0,
				"maxOutputTokens":  256,
				"responseMimeType": "application/json",
			},
		})
		if err != nil {
			return "", err
		}
		endpoint := cfg.BaseURL + "/models/" + url.PathEscape(cfg.Model) + ":generateContent"
		raw, err := h.Do(ctx, a.name, func(ctx context.Context) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
			if err != nil {
				return nil, err
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("X-goog-api-key", cfg.Key)
			return req, nil
		})
		if err != nil {
			return "", err
		}

		var out struct {
			Candidates []struct {
				Content struct {
					Parts []struct {
						Text string `json:"text"`
					} `json:"parts"`
				} `json:"content"`
				FinishReason string `json:"finishReason"`
			} `json:"candidates"`
			PromptFeedback *struct {
				BlockReason string `json:"blockReason"`
			} `json:"promptFeedback"`
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return "", err
		}
		if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
			return "", apiErrorf("gemini blocked: %s", out.PromptFeedback.BlockReason)
		}
		if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
			return "", apiErrorf("gemini empty candidates")
		}
		return strings.TrimSpace(out.Candidates[0].Content.Parts[0].Text), nil
	}
	return a
}
