package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/emandor/lemme_search/internal/matcher"
)

func NewOpenAI(h *HTTPClient, m *matcher.Matcher) Adapter {
	a := &llm{
		name:         "OPENAI",
		home:         "https://platform.openai.com",
		defaultModel: "gpt-4o-mini",
		defaultBase:  "https://api.openai.com/v1",
		http:         h,
		m:            m,
	}
	a.complete = func(ctx context.Context, cfg llmConfig, prompt string) (string, error) {
		b, err := json.Marshal(map[string]any{
			"model":             cfg.Model,
			"input":             prompt,
			"temperature":       0.0,
			"max_output_tokens": 256,
		})
		if err != nil {
			return "", err
		}
		raw, err := h.Do(ctx, a.name, func(ctx context.Context) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/responses", bytes.NewReader(b))
			if err != nil {
				return nil, err
			}
			req.Header.Set("Authorization", "Bearer "+cfg.Key)
			req.Header.Set("Content-Type", "application/json")
			return req, nil
		})
		if err != nil {
			return "", err
		}
		return extractOpenAIText(raw), nil
	}
	return a
}

// get text from Responses API or fallback Chat Completions.
func extractOpenAIText(raw []byte) string {
	var r1 struct {
		OutputText string `json:"output_text"`
	}
	if json.Unmarshal(raw, &r1) == nil && strings.TrimSpace(r1.OutputText) != "" {
		return r1.OutputText
	}

	// responses API: output[].content[].text
	var r2 struct {
		Output []struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"output"`
	}
	if json.Unmarshal(raw, &r2) == nil {
		for _, o := range r2.Output {
			for _, c := range o.Content {
				if strings.TrimSpace(c.Text) != "" {
					return c.Text
				}
			}
		}
	}

	// chat completions: choices[0].message.content
	var r3 struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if json.Unmarshal(raw, &r3) == nil && len(r3.Choices) > 0 {
		return r3.Choices[0].Message.Content
	}
	return ""
}
