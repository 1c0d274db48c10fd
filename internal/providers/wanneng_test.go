package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emandor/lemme_search/internal/matcher"
	"github.com/emandor/lemme_search/internal/model"
)

var eraQuery = model.Query{
	Content: "当今时代的主题是什么",
	Options: []string{
		"帝国主义战争与无产阶级革命成为时代主题",
		"和平与发展成为时代主题",
		"冷战与对抗成为时代主题",
	},
	Type: model.SingleChoice,
}

func wannengServer(t *testing.T, reply string, check func(r *http.Request, body wannengRequest)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body wannengRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if check != nil {
			check(r, body)
		}
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func searchWanneng(t *testing.T, srv *httptest.Server, q model.Query) model.Answer {
	t.Helper()
	w := NewWanneng(NewHTTPClient(HTTPConfig{}), matcher.New(matcher.DefaultConfig))
	return w.Search(context.Background(), q, model.ProviderRequest{
		Name:   w.Name(),
		Config: map[string]any{"token": "tok", "base_url": srv.URL + "/api"},
	})
}

func TestWannengExactHitIndices(t *testing.T) {
	srv := wannengServer(t, `{"code":0,"result":{"success":true,"answers":[1]}}`, func(r *http.Request, body wannengRequest) {
		assert.Equal(t, "/api/tok", r.URL.Path)
		assert.Equal(t, eraQuery.Content, body.Question)
		assert.Equal(t, eraQuery.Options, body.Options)
	})

	a := searchWanneng(t, srv, eraQuery)
	require.True(t, a.Success, a.ErrorMessage)
	assert.Equal(t, "万能题库", a.Provider)
	assert.Equal(t, []string{"B"}, a.Choice)
}

func TestWannengSimilarQuestionTextIsMatched(t *testing.T) {
	srv := wannengServer(t, `{"code":0,"result":{"success":false,"answers":[["帝国主义战争和无产阶级革命"],["别的"]]}}`, nil)

	a := searchWanneng(t, srv, eraQuery)
	require.True(t, a.Success, a.ErrorMessage)
	assert.Equal(t, []string{"A"}, a.Choice)
}

func TestWannengIndexOutOfRange(t *testing.T) {
	srv := wannengServer(t, `{"code":0,"result":{"success":true,"answers":[7]}}`, nil)

	a := searchWanneng(t, srv, eraQuery)
	assert.False(t, a.Success)
	assert.Equal(t, model.ErrAPI, a.ErrorKind)
}

func TestWannengUpstreamFailure(t *testing.T) {
	srv := wannengServer(t, `{"code":403,"message":"token无效"}`, nil)

	a := searchWanneng(t, srv, eraQuery)
	assert.False(t, a.Success)
	assert.Equal(t, model.ErrAPI, a.ErrorKind)
	assert.Equal(t, "token无效", a.ErrorMessage)
	assert.Empty(t, a.Choice)
}

func TestWannengJudgementAndText(t *testing.T) {
	srv := wannengServer(t, `{"code":0,"result":{"success":true,"answers":[0]}}`, nil)
	a := searchWanneng(t, srv, model.Query{Content: "太阳从西边升起", Type: model.TrueFalse})
	require.True(t, a.Success, a.ErrorMessage)
	require.NotNil(t, a.Judgement)
	assert.False(t, *a.Judgement)

	srv = wannengServer(t, `{"code":0,"result":{"success":true,"answers":["北京","上海"]}}`, nil)
	a = searchWanneng(t, srv, model.Query{Content: "中国两个直辖市____和____", Type: model.FillBlank})
	require.True(t, a.Success, a.ErrorMessage)
	assert.Equal(t, []string{"北京", "上海"}, a.Text)
	assert.Equal(t, model.FillBlank, a.Type)
}

func TestWannengMissingToken(t *testing.T) {
	w := NewWanneng(NewHTTPClient(HTTPConfig{}), nil)
	a := w.Search(context.Background(), eraQuery, model.ProviderRequest{Name: w.Name()})

	assert.False(t, a.Success)
	assert.Equal(t, model.ErrConfig, a.ErrorKind)
}
