package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emandor/lemme_search/internal/matcher"
	"github.com/emandor/lemme_search/internal/model"
)

func searchEnncy(t *testing.T, reply string, q model.Query, check func(*http.Request)) model.Answer {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		_, _ = w.Write([]byte(reply))
	}))
	defer srv.Close()

	e := NewEnncy(NewHTTPClient(HTTPConfig{}), matcher.New(matcher.DefaultConfig))
	return e.Search(context.Background(), q, model.ProviderRequest{
		Name:   e.Name(),
		Config: map[string]any{"token": "tok", "base_url": srv.URL + "/query"},
	})
}

func TestEnncyQueryParams(t *testing.T) {
	a := searchEnncy(t, `{"code":1,"data":{"answer":"B"}}`, eraQuery, func(r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		q := r.URL.Query()
		assert.Equal(t, "tok", q.Get("token"))
		assert.Equal(t, eraQuery.Content, q.Get("title"))
		assert.Equal(t, "single", q.Get("type"))
		assert.Contains(t, q.Get("options"), "\n")
	})
	require.True(t, a.Success, a.ErrorMessage)
	assert.Equal(t, []string{"B"}, a.Choice)
}

func TestEnncyMultiChoiceLetters(t *testing.T) {
	q := eraQuery
	q.Type = model.MultiChoice

	a := searchEnncy(t, `{"code":1,"data":{"answer":"答案：A、C"}}`, q, nil)
	require.True(t, a.Success, a.ErrorMessage)
	assert.Equal(t, []string{"A", "C"}, a.Choice)
	assert.Equal(t, model.MultiChoice, a.Type)
}

func TestEnncyTextAnswerIsMatched(t *testing.T) {
	a := searchEnncy(t, `{"code":1,"data":{"answer":"和平与发展"}}`, eraQuery, nil)
	require.True(t, a.Success, a.ErrorMessage)
	assert.Equal(t, []string{"B"}, a.Choice)
}

func TestEnncyUnmatchedText(t *testing.T) {
	a := searchEnncy(t, `{"code":1,"data":{"answer":"量子计算"}}`, eraQuery, nil)
	assert.False(t, a.Success)
	assert.Equal(t, model.ErrMatch, a.ErrorKind)
}

func TestEnncyJudgementAndBlanks(t *testing.T) {
	a := searchEnncy(t, `{"code":1,"data":{"answer":"错误"}}`, model.Query{Content: "1+1=3", Type: model.TrueFalse}, nil)
	require.True(t, a.Success, a.ErrorMessage)
	assert.False(t, *a.Judgement)

	a = searchEnncy(t, `{"code":1,"data":{"answer":"北京#上海"}}`, model.Query{Content: "____和____", Type: model.FillBlank}, nil)
	require.True(t, a.Success, a.ErrorMessage)
	assert.Equal(t, []string{"北京", "上海"}, a.Text)
}

func TestEnncyNotFound(t *testing.T) {
	a := searchEnncy(t, `{"code":0,"message":"未找到"}`, eraQuery, nil)
	assert.False(t, a.Success)
	assert.Equal(t, model.ErrAPI, a.ErrorKind)
}

func TestEnncyHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := NewEnncy(NewHTTPClient(HTTPConfig{}), nil)
	a := e.Search(context.Background(), eraQuery, model.ProviderRequest{
		Config: map[string]any{"token": "tok", "base_url": srv.URL},
	})
	assert.Equal(t, model.ErrAPI, a.ErrorKind)
	assert.Contains(t, a.ErrorMessage, "500")
}
