package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emandor/lemme_search/internal/cache"
	"github.com/emandor/lemme_search/internal/model"
)

func TestLocalHit(t *testing.T) {
	cached := model.ChoiceAnswer("OPENAI", model.SingleChoice, []string{"B"})
	cached.FromCache = true
	l := NewLocal(stubLookup{answer: cached})

	a := l.Search(context.Background(), eraQuery, model.ProviderRequest{Name: "Local"})
	require.True(t, a.Success)
	assert.Equal(t, "Local", a.Provider)
	assert.Equal(t, []string{"B"}, a.Choice)
	assert.False(t, a.FromCache)
}

func TestLocalMiss(t *testing.T) {
	l := NewLocal(stubLookup{err: cache.ErrNotFound})

	a := l.Search(context.Background(), eraQuery, model.ProviderRequest{Name: "Local"})
	assert.False(t, a.Success)
	assert.Equal(t, model.ErrCacheMiss, a.ErrorKind)
}

func TestLocalStoreError(t *testing.T) {
	l := NewLocal(stubLookup{err: errors.New("db gone")})

	a := l.Search(context.Background(), eraQuery, model.ProviderRequest{Name: "Local"})
	assert.False(t, a.Success)
	assert.Equal(t, model.ErrUnknown, a.ErrorKind)
}
