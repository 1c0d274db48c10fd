// Package cache remembers provider answers per question.
//
// A question is identified by its normalized content, type and normalized
// option set. Lookups try that identity first and fall back to embedding
// similarity when an embedding service is configured.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"

	"github.com/emandor/lemme_search/internal/matcher"
	"github.com/emandor/lemme_search/internal/model"
)

var ErrNotFound = errors.New("cache: not found")

type Store interface {
	// Find resolves the cached question for q, or ErrNotFound.
	Find(ctx context.Context, q model.Query) (*Question, error)
	// FindAnswers returns the cached answers of the named providers for q.
	// Providers without an entry are absent from the map.
	FindAnswers(ctx context.Context, q model.Query, providers []string) (map[string]model.Answer, error)
	// FindAny returns the most recently written answer for q from any provider.
	FindAny(ctx context.Context, q model.Query) (model.Answer, error)
	Upsert(ctx context.Context, q model.Query, a model.Answer) error
	UpsertMany(ctx context.Context, q model.Query, answers []model.Answer) error
}

// Question is a persisted question identity.
type Question struct {
	ID                int64
	Content           string
	NormalizedContent string
	IdentityHash      string
	Type              model.QuestionType
	Options           []string
	NormalizedOptions []string
	Embedding         []float32
}

// Identity is the order independent key of a query.
type Identity struct {
	Content string
	Options []string
	Hash    string
}

func IdentityOf(q model.Query) Identity {
	id := Identity{
		Content: matcher.NormalizeText(q.Content),
		Options: matcher.NormalizeOptions(q.Options),
	}
	h := sha256.New()
	h.Write([]byte(strconv.Itoa(int(q.Type))))
	h.Write([]byte{0})
	h.Write([]byte(id.Content))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(id.Options, "\x1f")))
	id.Hash = hex.EncodeToString(h.Sum(nil))
	return id
}

// EmbeddingText is what gets embedded for a question: the content, then the
// lettered options on one line.
func EmbeddingText(q model.Query) string {
	text := strings.TrimSpace(q.Content)
	if !q.HasOptions() {
		return text
	}
	parts := make([]string, 0, len(q.Options))
	for i, opt := range q.Options {
		parts = append(parts, model.OptionKey(i)+". "+strings.TrimSpace(opt))
	}
	return text + "\n" + strings.Join(parts, " ")
}

// compatibleOptions holds when both sides have no options or both have the
// same normalized option set.
func compatibleOptions(a, b []string) bool {
	if (len(a) == 0) != (len(b) == 0) {
		return false
	}
	return matcher.SameOptions(a, b)
}
