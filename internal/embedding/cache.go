package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/emandor/lemme_search/internal/telemetry"
)

// Cached memoizes vectors in Redis under emb:<model>:<mode>:<sha256(text)>.
// Redis failures fall through to the wrapped service.
type Cached struct {
	inner Service
	rdb   *redis.Client
	model string
	ttl   time.Duration
}

func NewCached(inner Service, rdb *redis.Client, model string, ttl time.Duration) *Cached {
	return &Cached{inner: inner, rdb: rdb, model: model, ttl: ttl}
}

func (c *Cached) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return c.get(ctx, ModeQuery, text, c.inner.EmbedQuery)
}

func (c *Cached) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return c.get(ctx, ModeDocument, text, c.inner.EmbedDocument)
}

func CacheKey(model string, mode Mode, text string) string {
	h := sha256.Sum256([]byte(text))
	return "emb:" + model + ":" + string(mode) + ":" + hex.EncodeToString(h[:])
}

func (c *Cached) get(ctx context.Context, mode Mode, text string, fn func(context.Context, string) ([]float32, error)) ([]float32, error) {
	log := telemetry.Component("embedding")
	key := CacheKey(c.model, mode, text)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var vec []float32
		if json.Unmarshal(raw, &vec) == nil && len(vec) > 0 {
			return vec, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		log.Warn().Err(err).Msg("embedding_cache_get_err")
	}

	vec, err := fn(ctx, text)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(vec); err == nil {
		if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
			log.Warn().Err(err).Msg("embedding_cache_set_err")
		}
	}
	return vec, nil
}
