package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientModesUseInstructionOnlyForQueries(t *testing.T) {
	var inputs []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		inputs = append(inputs, req.Input...)

		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0.5,0.25]}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL + "/v1/", APIKey: "k", QueryInstruction: "Q: "})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, c.Model())

	vec, err := c.EmbedQuery(context.Background(), "你好")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.25}, vec)

	_, err = c.EmbedDocument(context.Background(), "你好")
	require.NoError(t, err)

	assert.Equal(t, []string{"Q: 你好", "你好"}, inputs)
}

func TestClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.EmbedQuery(context.Background(), "x")
	assert.ErrorContains(t, err, "502")

	_, err = NewClient(Config{})
	assert.Error(t, err)
}

func TestClientEmptyData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.EmbedDocument(context.Background(), "x")
	assert.ErrorContains(t, err, "no vector")
}

func TestCacheKeySeparatesModes(t *testing.T) {
	q := CacheKey("bge-m3", ModeQuery, "abc")
	d := CacheKey("bge-m3", ModeDocument, "abc")

	assert.NotEqual(t, q, d)
	assert.Contains(t, q, "emb:bge-m3:query:")
}
