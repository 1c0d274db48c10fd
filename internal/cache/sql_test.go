package cache

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emandor/lemme_search/internal/db"
	"github.com/emandor/lemme_search/internal/model"
)

// fakeEmbedder returns fixed vectors keyed by embedding text.
type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	queries int
	docs    int
	fail    bool
}

func (f *fakeEmbedder) lookup(text string) ([]float32, error) {
	if f.fail {
		return nil, errors.New("embedding offline")
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	return f.lookup(text)
}

func (f *fakeEmbedder) EmbedDocument(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs++
	return f.lookup(text)
}

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	conn, err := db.Connect(db.DriverSQLite, filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.Migrate(conn, db.DriverSQLite))
	return conn
}

func newTestStore(t *testing.T, emb *fakeEmbedder) (*SQLStore, *sqlx.DB) {
	t.Helper()
	conn := openTestDB(t)
	opts := Options{}
	if emb != nil {
		opts.Embedder = emb
	}
	return NewSQLStore(conn, db.DriverSQLite, opts), conn
}

func count(t *testing.T, conn *sqlx.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, conn.Get(&n, `SELECT COUNT(*) FROM `+table))
	return n
}

// unitPair returns two unit vectors whose cosine similarity is sim.
func unitPair(sim float64) ([]float32, []float32) {
	return []float32{1, 0, 0}, []float32{float32(sim), float32(math.Sqrt(1 - sim*sim)), 0}
}

var capitalQuery = model.Query{
	Content: "中国的首都是哪里？",
	Options: []string{"上海", "北京", "广州"},
	Type:    model.SingleChoice,
}

func TestUpsertIsIdempotent(t *testing.T) {
	s, conn := newTestStore(t, nil)
	ctx := context.Background()
	a := model.ChoiceAnswer("万能题库", model.SingleChoice, []string{"B"})

	require.NoError(t, s.Upsert(ctx, capitalQuery, a))
	first, err := s.FindAnswers(ctx, capitalQuery, []string{"万能题库"})
	require.NoError(t, err)

	require.NoError(t, s.Upsert(ctx, capitalQuery, a))
	second, err := s.FindAnswers(ctx, capitalQuery, []string{"万能题库"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, count(t, conn, "questions"))
	assert.Equal(t, 1, count(t, conn, "question_provider_answers"))
	assert.Equal(t, []string{"B"}, second["万能题库"].Choice)
	assert.True(t, second["万能题库"].FromCache)
}

func TestUpsertOverwritesPreviousAnswer(t *testing.T) {
	s, conn := newTestStore(t, nil)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, capitalQuery, model.ChoiceAnswer("OPENAI", model.SingleChoice, []string{"A"})))
	require.NoError(t, s.Upsert(ctx, capitalQuery, model.ChoiceAnswer("OPENAI", model.SingleChoice, []string{"B"})))

	got, err := s.FindAnswers(ctx, capitalQuery, []string{"OPENAI"})
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, got["OPENAI"].Choice)
	assert.Equal(t, 1, count(t, conn, "question_provider_answers"))
}

func TestUpsertSkipsFailures(t *testing.T) {
	s, conn := newTestStore(t, nil)

	err := s.UpsertMany(context.Background(), capitalQuery, []model.Answer{
		model.Failure("OPENAI", model.SingleChoice, model.ErrNetwork, "timeout"),
		{Provider: "EMPTY", Success: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, count(t, conn, "questions"))
}

func TestFindIgnoresOptionOrder(t *testing.T) {
	s, _ := newTestStore(t, nil)
	ctx := context.Background()

	stored := model.Query{Content: "选择正确的描述", Options: []string{"A text", "B text"}, Type: model.MultiChoice}
	require.NoError(t, s.Upsert(ctx, stored, model.ChoiceAnswer("Local", model.SingleChoice, []string{"A", "B"})))

	swapped := stored
	swapped.Options = []string{"B text", "A text"}

	a, err := s.Find(ctx, stored)
	require.NoError(t, err)
	b, err := s.Find(ctx, swapped)
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, []string{"A text", "B text"}, b.Options, "original order is kept")
}

func TestFindExactMatchCollapsesPunctuation(t *testing.T) {
	emb := &fakeEmbedder{}
	s, _ := newTestStore(t, emb)
	ctx := context.Background()

	stored := model.Query{Content: "你好世界", Type: model.OpenAnswer}
	require.NoError(t, s.Upsert(ctx, stored, model.TextAnswer("OPENAI", model.OpenAnswer, []string{"hello world"})))
	before := emb.queries

	q, err := s.Find(ctx, model.Query{Content: "你好，世界！", Type: model.OpenAnswer})
	require.NoError(t, err)
	assert.Equal(t, "你好世界", q.Content)
	assert.Equal(t, before, emb.queries, "exact path must not embed")
	assert.Equal(t, 1, emb.docs, "embedding computed once on create")
}

func TestFindRespectsType(t *testing.T) {
	s, _ := newTestStore(t, nil)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, model.Query{Content: "地球是圆的", Type: model.TrueFalse}, model.JudgementAnswer("OPENAI", true)))

	_, err := s.Find(ctx, model.Query{Content: "地球是圆的", Type: model.OpenAnswer})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFuzzyAcceptsSimilarQuestion(t *testing.T) {
	stored := model.Query{Content: "秦始皇统一六国是在哪一年", Type: model.FillBlank}
	asked := model.Query{Content: "秦始皇在哪一年统一了六国", Type: model.FillBlank}
	v1, v2 := unitPair(0.95)
	emb := &fakeEmbedder{vectors: map[string][]float32{
		EmbeddingText(stored): v1,
		EmbeddingText(asked):  v2,
	}}
	s, _ := newTestStore(t, emb)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, stored, model.TextAnswer("OPENAI", model.FillBlank, []string{"公元前221年"})))

	q, err := s.Find(ctx, asked)
	require.NoError(t, err)
	assert.Equal(t, stored.Content, q.Content)

	got, err := s.FindAnswers(ctx, asked, []string{"OPENAI"})
	require.NoError(t, err)
	assert.Equal(t, []string{"公元前221年"}, got["OPENAI"].Text)
}

func TestFuzzyRejectsBelowThreshold(t *testing.T) {
	stored := model.Query{Content: "秦始皇统一六国是在哪一年", Type: model.FillBlank}
	asked := model.Query{Content: "汉武帝在哪一年登基", Type: model.FillBlank}
	v1, v2 := unitPair(0.6)
	emb := &fakeEmbedder{vectors: map[string][]float32{
		EmbeddingText(stored): v1,
		EmbeddingText(asked):  v2,
	}}
	s, _ := newTestStore(t, emb)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, stored, model.TextAnswer("OPENAI", model.FillBlank, []string{"公元前221年"})))

	_, err := s.Find(ctx, asked)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFuzzyRejectsOptionMismatch(t *testing.T) {
	withOptions := model.Query{Content: "下列哪个是质数", Options: []string{"A", "B"}, Type: model.SingleChoice}
	without := model.Query{Content: "下列哪一个是质数", Type: model.SingleChoice}
	v1, v2 := unitPair(0.95)
	emb := &fakeEmbedder{vectors: map[string][]float32{
		EmbeddingText(withOptions): v1,
		EmbeddingText(without):     v2,
	}}
	s, _ := newTestStore(t, emb)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, withOptions, model.ChoiceAnswer("OPENAI", model.SingleChoice, []string{"A"})))

	_, err := s.Find(ctx, without)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, emb.docs)
}

func TestFuzzySkipsQuestionsWithoutEmbedding(t *testing.T) {
	stored := model.Query{Content: "光速是多少", Type: model.FillBlank}
	asked := model.Query{Content: "光的速度是多少", Type: model.FillBlank}
	emb := &fakeEmbedder{fail: true}
	s, _ := newTestStore(t, emb)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, stored, model.TextAnswer("OPENAI", model.FillBlank, []string{"3e8 m/s"})))

	emb.fail = false
	_, err := s.Find(ctx, asked)
	assert.ErrorIs(t, err, ErrNotFound)

	// still reachable by identity
	_, err = s.Find(ctx, stored)
	assert.NoError(t, err)
}

func TestFindAnswersReturnsOnlyRequestedHits(t *testing.T) {
	s, _ := newTestStore(t, nil)
	ctx := context.Background()

	require.NoError(t, s.UpsertMany(ctx, capitalQuery, []model.Answer{
		model.ChoiceAnswer("OPENAI", model.SingleChoice, []string{"B"}),
		model.ChoiceAnswer("GEMINI", model.SingleChoice, []string{"B"}),
		model.ChoiceAnswer("CLAUDE", model.SingleChoice, []string{"A"}),
	}))

	got, err := s.FindAnswers(ctx, capitalQuery, []string{"OPENAI", "CLAUDE", "万能题库"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, []string{"B"}, got["OPENAI"].Choice)
	assert.Equal(t, []string{"A"}, got["CLAUDE"].Choice)
	assert.NotContains(t, got, "GEMINI")

	miss, err := s.FindAnswers(ctx, model.Query{Content: "unknown", Type: model.OpenAnswer}, []string{"OPENAI"})
	require.NoError(t, err)
	assert.Empty(t, miss)
}

func TestCachedChoiceFollowsAskedOptionOrder(t *testing.T) {
	s, _ := newTestStore(t, nil)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, capitalQuery, model.ChoiceAnswer("OPENAI", model.SingleChoice, []string{"B"})))

	reordered := capitalQuery
	reordered.Options = []string{"北京", "上海", "广州"}

	got, err := s.FindAnswers(ctx, reordered, []string{"OPENAI"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, got["OPENAI"].Choice)

	a, err := s.FindAny(ctx, reordered)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, a.Choice)

	same, err := s.FindAnswers(ctx, capitalQuery, []string{"OPENAI"})
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, same["OPENAI"].Choice)
}

func TestCachedChoiceOutOfRangeIsMiss(t *testing.T) {
	s, _ := newTestStore(t, nil)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, capitalQuery, model.ChoiceAnswer("OPENAI", model.SingleChoice, []string{"D"})))

	got, err := s.FindAnswers(ctx, capitalQuery, []string{"OPENAI"})
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = s.FindAny(ctx, capitalQuery)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFuzzyHitRemapsChoice(t *testing.T) {
	stored := model.Query{Content: "下列哪个城市是中国的首都", Options: []string{"上海", "北京", "广州"}, Type: model.SingleChoice}
	asked := model.Query{Content: "中国的首都是下列哪个城市", Options: []string{"广州", "上海", "北京"}, Type: model.SingleChoice}
	v1, v2 := unitPair(0.95)
	emb := &fakeEmbedder{vectors: map[string][]float32{
		EmbeddingText(stored): v1,
		EmbeddingText(asked):  v2,
	}}
	s, _ := newTestStore(t, emb)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, stored, model.ChoiceAnswer("CLAUDE", model.SingleChoice, []string{"B"})))

	got, err := s.FindAnswers(ctx, asked, []string{"CLAUDE"})
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, got["CLAUDE"].Choice)
}

func TestFindAnswersKeepsJudgement(t *testing.T) {
	s, _ := newTestStore(t, nil)
	ctx := context.Background()
	q := model.Query{Content: "水在100度沸腾", Type: model.TrueFalse}

	require.NoError(t, s.Upsert(ctx, q, model.JudgementAnswer("言溪题库", false)))

	got, err := s.FindAnswers(ctx, q, []string{"言溪题库"})
	require.NoError(t, err)
	require.NotNil(t, got["言溪题库"].Judgement)
	assert.False(t, *got["言溪题库"].Judgement)
}

func TestFindAny(t *testing.T) {
	s, _ := newTestStore(t, nil)
	ctx := context.Background()

	_, err := s.FindAny(ctx, capitalQuery)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Upsert(ctx, capitalQuery, model.ChoiceAnswer("OPENAI", model.SingleChoice, []string{"B"})))

	a, err := s.FindAny(ctx, capitalQuery)
	require.NoError(t, err)
	assert.Equal(t, "OPENAI", a.Provider)
	assert.Equal(t, []string{"B"}, a.Choice)
}

func TestVectorEncoding(t *testing.T) {
	v := []float32{0.25, -1.5, 3}
	assert.Equal(t, v, decodeVector(encodeVector(v)))
	assert.Nil(t, encodeVector(nil))
	assert.InDelta(t, 1.0, cosineSimilarity(v, v), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity(v, []float32{1}))
}
