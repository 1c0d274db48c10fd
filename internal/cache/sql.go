package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/emandor/lemme_search/internal/embedding"
	"github.com/emandor/lemme_search/internal/matcher"
	"github.com/emandor/lemme_search/internal/model"
	"github.com/emandor/lemme_search/internal/telemetry"
)

const (
	DefaultFuzzyThreshold = 0.82
	DefaultTopK           = 5
)

type Options struct {
	// Embedder enables the similarity fallback. Nil means exact lookups only.
	Embedder       embedding.Service
	FuzzyThreshold float64
	TopK           int
}

// SQLStore keeps questions and answers in MySQL or SQLite.
type SQLStore struct {
	db        *sqlx.DB
	driver    string
	emb       embedding.Service
	threshold float64
	topK      int
	log       zerolog.Logger
}

func NewSQLStore(db *sqlx.DB, driver string, opts Options) *SQLStore {
	if opts.FuzzyThreshold <= 0 {
		opts.FuzzyThreshold = DefaultFuzzyThreshold
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	return &SQLStore{
		db:        db,
		driver:    driver,
		emb:       opts.Embedder,
		threshold: opts.FuzzyThreshold,
		topK:      opts.TopK,
		log:       telemetry.Component("cache"),
	}
}

type questionRow struct {
	ID                int64          `db:"id"`
	Content           string         `db:"content"`
	NormalizedContent string         `db:"normalized_content"`
	IdentityHash      string         `db:"identity_hash"`
	Type              int            `db:"type"`
	Options           sql.NullString `db:"options"`
	NormalizedOptions sql.NullString `db:"normalized_options"`
	Embedding         []byte         `db:"embedding"`
}

func (r questionRow) toQuestion() *Question {
	return &Question{
		ID:                r.ID,
		Content:           r.Content,
		NormalizedContent: r.NormalizedContent,
		IdentityHash:      r.IdentityHash,
		Type:              model.QuestionType(r.Type),
		Options:           decodeList(r.Options),
		NormalizedOptions: decodeList(r.NormalizedOptions),
		Embedding:         decodeVector(r.Embedding),
	}
}

type answerRow struct {
	ProviderName string         `db:"provider_name"`
	Type         int            `db:"type"`
	Choice       sql.NullString `db:"choice"`
	Judgement    sql.NullBool   `db:"judgement"`
	Text         sql.NullString `db:"text"`
}

func (r answerRow) toAnswer() model.Answer {
	a := model.Answer{
		Provider:  r.ProviderName,
		Type:      model.QuestionType(r.Type),
		Choice:    decodeList(r.Choice),
		Text:      decodeList(r.Text),
		Success:   true,
		FromCache: true,
	}
	if r.Judgement.Valid {
		v := r.Judgement.Bool
		a.Judgement = &v
	}
	return a
}

// remapChoice rewrites cached option letters, which refer to the option order
// the question was stored with, into letters of q's option order. It reports
// false when a letter names no option of q.
func remapChoice(stored *Question, q model.Query, a model.Answer) (model.Answer, bool) {
	if len(a.Choice) == 0 || (len(stored.Options) == 0 && !q.HasOptions()) {
		return a, true
	}
	current := make([]string, len(q.Options))
	for i, o := range q.Options {
		current[i] = matcher.NormalizeText(o)
	}
	taken := make([]bool, len(current))
	seen := map[int]bool{}
	keys := make([]string, 0, len(a.Choice))
	for _, k := range a.Choice {
		i := model.OptionIndex(k)
		if i < 0 || i >= len(stored.Options) {
			return a, false
		}
		if seen[i] {
			continue
		}
		seen[i] = true
		want := matcher.NormalizeText(stored.Options[i])
		j := -1
		for n, c := range current {
			if !taken[n] && c == want {
				j = n
				break
			}
		}
		if j < 0 {
			return a, false
		}
		taken[j] = true
		keys = append(keys, model.OptionKey(j))
	}
	sort.Strings(keys)
	a.Choice = keys
	return a, true
}

const questionColumns = `id, content, normalized_content, identity_hash, type, options, normalized_options, embedding`

func (s *SQLStore) Find(ctx context.Context, q model.Query) (*Question, error) {
	id := IdentityOf(q)

	var row questionRow
	err := s.db.GetContext(ctx, &row, `SELECT `+questionColumns+` FROM questions WHERE identity_hash = ?`, id.Hash)
	if err == nil {
		return row.toQuestion(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find question: %w", err)
	}
	if s.emb == nil {
		return nil, ErrNotFound
	}
	return s.findSimilar(ctx, q, id)
}

// findSimilar embeds q in query mode and accepts the best of the top-K
// same-type questions that clears the threshold with compatible options.
func (s *SQLStore) findSimilar(ctx context.Context, q model.Query, id Identity) (*Question, error) {
	vec, err := s.emb.EmbedQuery(ctx, EmbeddingText(q))
	if err != nil {
		s.log.Warn().Err(err).Msg("query_embedding_failed")
		return nil, ErrNotFound
	}

	var rows []questionRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT `+questionColumns+` FROM questions WHERE type = ? AND embedding IS NOT NULL`, int(q.Type)); err != nil {
		return nil, fmt.Errorf("scan embeddings: %w", err)
	}
	candidates := make([]*Question, 0, len(rows))
	for _, r := range rows {
		candidates = append(candidates, r.toQuestion())
	}

	for _, c := range topK(vec, candidates, s.topK) {
		if c.sim < s.threshold {
			break
		}
		if !compatibleOptions(id.Options, c.q.NormalizedOptions) {
			continue
		}
		s.log.Debug().Int64("question_id", c.q.ID).Float64("similarity", c.sim).Msg("fuzzy_hit")
		return c.q, nil
	}
	return nil, ErrNotFound
}

func (s *SQLStore) FindAnswers(ctx context.Context, q model.Query, providers []string) (map[string]model.Answer, error) {
	out := make(map[string]model.Answer, len(providers))
	if len(providers) == 0 {
		return out, nil
	}
	question, err := s.Find(ctx, q)
	if errors.Is(err, ErrNotFound) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}

	query, args, err := sqlx.In(`SELECT provider_name, type, choice, judgement, text
		FROM question_provider_answers
		WHERE question_id = ? AND provider_name IN (?)`, question.ID, providers)
	if err != nil {
		return nil, fmt.Errorf("build answers query: %w", err)
	}
	var rows []answerRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("find answers: %w", err)
	}
	for _, r := range rows {
		a, ok := remapChoice(question, q, r.toAnswer())
		if !ok || !a.HasPayload() {
			continue
		}
		out[r.ProviderName] = a
	}
	return out, nil
}

func (s *SQLStore) FindAny(ctx context.Context, q model.Query) (model.Answer, error) {
	question, err := s.Find(ctx, q)
	if err != nil {
		return model.Answer{}, err
	}
	var row answerRow
	err = s.db.GetContext(ctx, &row, `SELECT provider_name, type, choice, judgement, text
		FROM question_provider_answers
		WHERE question_id = ?
		ORDER BY updated_at DESC, id DESC LIMIT 1`, question.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Answer{}, ErrNotFound
	}
	if err != nil {
		return model.Answer{}, fmt.Errorf("find any answer: %w", err)
	}
	a, ok := remapChoice(question, q, row.toAnswer())
	if !ok {
		return model.Answer{}, ErrNotFound
	}
	return a, nil
}

func (s *SQLStore) Upsert(ctx context.Context, q model.Query, a model.Answer) error {
	return s.UpsertMany(ctx, q, []model.Answer{a})
}

// UpsertMany resolves or creates the question once and writes one row per
// (question, provider), overwriting earlier payloads. Failed or empty answers
// are skipped.
func (s *SQLStore) UpsertMany(ctx context.Context, q model.Query, answers []model.Answer) error {
	keep := answers[:0:0]
	for _, a := range answers {
		if a.Success && a.HasPayload() && a.Provider != "" {
			keep = append(keep, a)
		}
	}
	if len(keep) == 0 {
		return nil
	}

	var (
		questionID int64
		vec        []byte
		create     bool
	)
	existing, err := s.Find(ctx, q)
	switch {
	case err == nil:
		questionID = existing.ID
	case errors.Is(err, ErrNotFound):
		create = true
		vec = s.documentEmbedding(ctx, q)
	default:
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if create {
		if questionID, err = s.insertQuestion(ctx, tx, q, vec); err != nil {
			return err
		}
	}
	for _, a := range keep {
		if _, err := tx.ExecContext(ctx, s.upsertAnswerSQL(),
			questionID, a.Provider, int(a.Type),
			encodeList(a.Choice), judgementValue(a.Judgement), encodeList(a.Text)); err != nil {
			return fmt.Errorf("upsert answer %s: %w", a.Provider, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// insertQuestion tolerates a concurrent insert of the same identity and
// returns whichever row won.
func (s *SQLStore) insertQuestion(ctx context.Context, tx *sqlx.Tx, q model.Query, vec []byte) (int64, error) {
	id := IdentityOf(q)
	verb := "INSERT IGNORE"
	if s.driver == "sqlite" {
		verb = "INSERT OR IGNORE"
	}
	_, err := tx.ExecContext(ctx, verb+` INTO questions
		(content, normalized_content, identity_hash, type, options, normalized_options, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		q.Content, id.Content, id.Hash, int(q.Type), encodeList(q.Options), encodeList(id.Options), vec)
	if err != nil {
		return 0, fmt.Errorf("insert question: %w", err)
	}
	var questionID int64
	if err := tx.GetContext(ctx, &questionID, `SELECT id FROM questions WHERE identity_hash = ?`, id.Hash); err != nil {
		return 0, fmt.Errorf("resolve question id: %w", err)
	}
	return questionID, nil
}

func (s *SQLStore) upsertAnswerSQL() string {
	const insert = `INSERT INTO question_provider_answers
		(question_id, provider_name, type, choice, judgement, text)
		VALUES (?, ?, ?, ?, ?, ?)`
	if s.driver == "sqlite" {
		return insert + ` ON CONFLICT(question_id, provider_name) DO UPDATE SET
			type = excluded.type, choice = excluded.choice, judgement = excluded.judgement,
			text = excluded.text, updated_at = CURRENT_TIMESTAMP`
	}
	return insert + ` ON DUPLICATE KEY UPDATE
		type = VALUES(type), choice = VALUES(choice), judgement = VALUES(judgement),
		text = VALUES(text), updated_at = CURRENT_TIMESTAMP`
}

// documentEmbedding is best effort: a question stored without a vector is
// still reachable through the exact path.
func (s *SQLStore) documentEmbedding(ctx context.Context, q model.Query) []byte {
	if s.emb == nil {
		return nil
	}
	vec, err := s.emb.EmbedDocument(ctx, EmbeddingText(q))
	if err != nil {
		s.log.Warn().Err(err).Msg("document_embedding_failed")
		return nil
	}
	return encodeVector(vec)
}

func encodeList(v []string) any {
	if len(v) == 0 {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return string(b)
}

func decodeList(v sql.NullString) []string {
	if !v.Valid || v.String == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(v.String), &out); err != nil {
		return nil
	}
	return out
}

func judgementValue(v *bool) any {
	if v == nil {
		return nil
	}
	return *v
}
