package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emandor/lemme_search/internal/matcher"
	"github.com/emandor/lemme_search/internal/model"
)

func llmServer(t *testing.T, path, reply string, check func(*http.Request, string)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, path, r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		if check != nil {
			check(r, string(body))
		}
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func llmRequest(srv *httptest.Server) model.ProviderRequest {
	return model.ProviderRequest{Config: map[string]any{"key": "k", "base_url": srv.URL + "/v1"}}
}

func newMatcher() *matcher.Matcher { return matcher.New(matcher.DefaultConfig) }

func TestOpenAIChoice(t *testing.T) {
	reply, _ := json.Marshal(map[string]any{"output_text": `{"answer":"和平与发展成为时代主题","reason":"..."}`})
	srv := llmServer(t, "/v1/responses", string(reply), func(r *http.Request, body string) {
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		assert.Contains(t, body, "gpt-4o-mini")
		assert.Contains(t, body, "B. 和平与发展成为时代主题")
	})

	a := NewOpenAI(NewHTTPClient(HTTPConfig{}), newMatcher()).Search(context.Background(), eraQuery, llmRequest(srv))
	require.True(t, a.Success, a.ErrorMessage)
	assert.Equal(t, "OPENAI", a.Provider)
	assert.Equal(t, []string{"B"}, a.Choice)
}

func TestOpenAIChatCompletionsFallback(t *testing.T) {
	srv := llmServer(t, "/v1/responses", `{"choices":[{"message":{"content":"{\"answer\":\"true\"}"}}]}`, nil)

	a := NewOpenAI(NewHTTPClient(HTTPConfig{}), newMatcher()).
		Search(context.Background(), model.Query{Content: "地球是圆的", Type: model.TrueFalse}, llmRequest(srv))
	require.True(t, a.Success, a.ErrorMessage)
	assert.True(t, *a.Judgement)
}

func TestAnthropicMultiChoice(t *testing.T) {
	srv := llmServer(t, "/v1/messages", `{"content":[{"type":"text","text":"{\"answer\":[\"A\",\"C\"]}"}]}`, func(r *http.Request, _ string) {
		assert.Equal(t, "k", r.Header.Get("x-api-key"))
		assert.NotEmpty(t, r.Header.Get("anthropic-version"))
	})
	q := eraQuery
	q.Type = model.MultiChoice

	a := NewAnthropic(NewHTTPClient(HTTPConfig{}), newMatcher()).Search(context.Background(), q, llmRequest(srv))
	require.True(t, a.Success, a.ErrorMessage)
	assert.Equal(t, []string{"A", "C"}, a.Choice)
	assert.Equal(t, "CLAUDE", a.Provider)
}

func TestGeminiFillBlank(t *testing.T) {
	srv := llmServer(t, "/v1/models/gemini-pro:generateContent",
		`{"candidates":[{"content":{"parts":[{"text":"{\"answer\":[\"北京\",\"上海\"]}"}]}}]}`,
		func(r *http.Request, _ string) {
			assert.Equal(t, "k", r.Header.Get("X-goog-api-key"))
		})
	req := llmRequest(srv)
	req.Config["model"] = "gemini-pro"

	a := NewGemini(NewHTTPClient(HTTPConfig{}), newMatcher()).
		Search(context.Background(), model.Query{Content: "____和____", Type: model.FillBlank}, req)
	require.True(t, a.Success, a.ErrorMessage)
	assert.Equal(t, []string{"北京", "上海"}, a.Text)
}

func TestGeminiBlocked(t *testing.T) {
	srv := llmServer(t, "/v1/models/gemini-2.5-flash:generateContent", `{"promptFeedback":{"blockReason":"SAFETY"}}`, nil)

	a := NewGemini(NewHTTPClient(HTTPConfig{}), newMatcher()).Search(context.Background(), eraQuery, llmRequest(srv))
	assert.False(t, a.Success)
	assert.Equal(t, model.ErrAPI, a.ErrorKind)
	assert.Contains(t, a.ErrorMessage, "SAFETY")
}

func TestLLMUnmatchedAnswer(t *testing.T) {
	srv := llmServer(t, "/v1/responses", `{"output_text":"{\"answer\":\"量子计算\"}"}`, nil)

	a := NewOpenAI(NewHTTPClient(HTTPConfig{}), newMatcher()).Search(context.Background(), eraQuery, llmRequest(srv))
	assert.False(t, a.Success)
	assert.Equal(t, model.ErrMatch, a.ErrorKind)
}

func TestLLMNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	a := NewOpenAI(NewHTTPClient(HTTPConfig{}), newMatcher()).Search(context.Background(), eraQuery,
		model.ProviderRequest{Config: map[string]any{"key": "k", "base_url": base}})
	assert.False(t, a.Success)
	assert.Equal(t, model.ErrNetwork, a.ErrorKind)
}

func TestLLMMissingKey(t *testing.T) {
	a := NewAnthropic(NewHTTPClient(HTTPConfig{}), newMatcher()).Search(context.Background(), eraQuery, model.ProviderRequest{})
	assert.Equal(t, model.ErrConfig, a.ErrorKind)
	assert.True(t, strings.Contains(a.ErrorMessage, "key"))
}
