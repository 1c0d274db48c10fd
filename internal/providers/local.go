package providers

import (
	"context"
	"errors"

	"github.com/emandor/lemme_search/internal/cache"
	"github.com/emandor/lemme_search/internal/model"
)

// AnswerLookup is the read side of the answer cache used by Local.
type AnswerLookup interface {
	FindAny(ctx context.Context, q model.Query) (model.Answer, error)
}

// Local answers from the cache only and never touches the network. Its
// answers are never written back to the cache.
type Local struct {
	cache AnswerLookup
}

func NewLocal(c AnswerLookup) *Local { return &Local{cache: c} }

func (l *Local) Name() string                        { return "Local" }
func (l *Local) Cacheable() bool                     { return false }
func (l *Local) ValidateConfig(map[string]any) error { return nil }

func (l *Local) Describe() Info {
	return Info{Home: "本地缓存", Free: true, Pay: false}
}

func (l *Local) Search(ctx context.Context, q model.Query, _ model.ProviderRequest) model.Answer {
	a, err := l.cache.FindAny(ctx, q)
	if errors.Is(err, cache.ErrNotFound) {
		return model.Failure(l.Name(), q.Type, model.ErrCacheMiss, "缓存中未找到该题目")
	}
	return guard(l.Name(), q, func() (model.Answer, error) {
		if err != nil {
			return model.Answer{}, err
		}
		return model.Answer{Type: a.Type, Choice: a.Choice, Judgement: a.Judgement, Text: a.Text}, nil
	})
}
