package tokens

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/emandor/lemme_search/internal/quota"
	"github.com/emandor/lemme_search/internal/telemetry"
)

var (
	ErrNotFound = errors.New("token not found")
	ErrDisabled = errors.New("token disabled")
)

// Prefix marks plain tokens handed to clients.
const Prefix = "lm_"

type Token struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Enabled     bool      `db:"enabled" json:"enabled"`
	SearchQuota int       `db:"search_quota" json:"search_quota"`
	SearchUsed  int       `db:"search_used" json:"search_used"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Quota returns the token's counters as a quota checker.
func (t *Token) Quota() *quota.TokenQuota {
	return &quota.TokenQuota{SearchQuota: t.SearchQuota, SearchUsed: t.SearchUsed}
}

// ProviderConfig is a provider configuration persisted for one token.
type ProviderConfig struct {
	Provider  string         `json:"provider"`
	Config    map[string]any `json:"config,omitempty"`
	Enabled   bool           `json:"enabled"`
	SortOrder int            `json:"sort_order"`
}

// Store keeps API tokens in SQL. Only SHA-256 hashes are stored; lookups are
// memoized in Redis when a client is given.
type Store struct {
	db  *sqlx.DB
	rdb *redis.Client
	ttl time.Duration
	log zerolog.Logger
}

func NewStore(db *sqlx.DB, rdb *redis.Client, cacheTTL time.Duration) *Store {
	return &Store{db: db, rdb: rdb, ttl: cacheTTL, log: telemetry.Component("tokens")}
}

// Generate returns a fresh random plain token.
func Generate() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return Prefix + hex.EncodeToString(b), nil
}

func Hash(plain string) string {
	h := sha256.Sum256([]byte(strings.TrimSpace(plain)))
	return hex.EncodeToString(h[:])
}

// Create stores a new token and returns its plain value. The plain value is
// not recoverable later.
func (s *Store) Create(ctx context.Context, name string, searchQuota int) (string, *Token, error) {
	plain, err := Generate()
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO api_tokens (name, token_hash, enabled, search_quota) VALUES (?, ?, ?, ?)`,
		name, Hash(plain), true, searchQuota)
	if err != nil {
		return "", nil, fmt.Errorf("insert token: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", nil, fmt.Errorf("token id: %w", err)
	}
	t, err := s.byID(ctx, id)
	if err != nil {
		return "", nil, err
	}
	return plain, t, nil
}

const tokenColumns = `id, name, enabled, search_quota, search_used, created_at`

func (s *Store) byID(ctx context.Context, id int64) (*Token, error) {
	var t Token
	err := s.db.GetContext(ctx, &t, `SELECT `+tokenColumns+` FROM api_tokens WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}
	return &t, nil
}

func cacheKey(hash string) string { return "tok:" + hash }

// Authenticate resolves a plain bearer token.
func (s *Store) Authenticate(ctx context.Context, plain string) (*Token, error) {
	plain = strings.TrimSpace(plain)
	if plain == "" {
		return nil, ErrNotFound
	}
	hash := Hash(plain)

	t, ok := s.cached(ctx, hash)
	if !ok {
		var row Token
		err := s.db.GetContext(ctx, &row, `SELECT `+tokenColumns+` FROM api_tokens WHERE token_hash = ?`, hash)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("authenticate: %w", err)
		}
		t = &row
		s.remember(ctx, hash, t)
	}
	if !t.Enabled {
		return nil, ErrDisabled
	}
	return t, nil
}

func (s *Store) cached(ctx context.Context, hash string) (*Token, bool) {
	if s.rdb == nil || s.ttl <= 0 {
		return nil, false
	}
	raw, err := s.rdb.Get(ctx, cacheKey(hash)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Msg("token_cache_get_err")
		}
		return nil, false
	}
	var t Token
	if json.Unmarshal(raw, &t) != nil {
		return nil, false
	}
	return &t, true
}

func (s *Store) remember(ctx context.Context, hash string, t *Token) {
	if s.rdb == nil || s.ttl <= 0 {
		return
	}
	b, err := json.Marshal(t)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, cacheKey(hash), b, s.ttl).Err(); err != nil {
		s.log.Warn().Err(err).Msg("token_cache_set_err")
	}
}

// ConsumeSearch counts one search against the token's quota. It fails with
// quota.ErrQuotaExceeded when the quota is used up; zero quota is unlimited.
func (s *Store) ConsumeSearch(ctx context.Context, tokenID int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE api_tokens SET search_used = search_used + 1
		WHERE id = ? AND (search_quota = 0 OR search_used < search_quota)`, tokenID)
	if err != nil {
		return fmt.Errorf("consume search: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume search: %w", err)
	}
	if n == 0 {
		if _, err := s.byID(ctx, tokenID); err != nil {
			return err
		}
		return quota.ErrQuotaExceeded
	}
	return nil
}

// SetEnabled switches a token on or off and drops its cached copy.
func (s *Store) SetEnabled(ctx context.Context, plain string, enabled bool) error {
	hash := Hash(plain)
	res, err := s.db.ExecContext(ctx, `UPDATE api_tokens SET enabled = ? WHERE token_hash = ?`, enabled, hash)
	if err != nil {
		return fmt.Errorf("set enabled: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if s.rdb != nil {
		_ = s.rdb.Del(ctx, cacheKey(hash)).Err()
	}
	return nil
}

// SetProviderConfig creates or replaces one provider configuration of a token.
func (s *Store) SetProviderConfig(ctx context.Context, tokenID int64, pc ProviderConfig) error {
	if _, err := s.byID(ctx, tokenID); err != nil {
		return err
	}
	var cfg any
	if len(pc.Config) > 0 {
		b, err := json.Marshal(pc.Config)
		if err != nil {
			return fmt.Errorf("encode config: %w", err)
		}
		cfg = string(b)
	}
	_, err := s.db.ExecContext(ctx, s.upsertConfigSQL(), tokenID, pc.Provider, cfg, pc.Enabled, pc.SortOrder)
	if err != nil {
		return fmt.Errorf("set provider config: %w", err)
	}
	return nil
}

func (s *Store) upsertConfigSQL() string {
	const insert = `INSERT INTO token_provider_configs (token_id, provider_name, config, enabled, sort_order)
		VALUES (?, ?, ?, ?, ?)`
	if s.db.DriverName() == "sqlite" {
		return insert + ` ON CONFLICT(token_id, provider_name) DO UPDATE SET
			config = excluded.config, enabled = excluded.enabled,
			sort_order = excluded.sort_order, updated_at = CURRENT_TIMESTAMP`
	}
	return insert + ` ON DUPLICATE KEY UPDATE
		config = VALUES(config), enabled = VALUES(enabled),
		sort_order = VALUES(sort_order), updated_at = CURRENT_TIMESTAMP`
}

type configRow struct {
	Provider  string         `db:"provider_name"`
	Config    sql.NullString `db:"config"`
	Enabled   bool           `db:"enabled"`
	SortOrder int            `db:"sort_order"`
}

// ProviderConfigs lists the enabled provider configurations of a token in
// sort order.
func (s *Store) ProviderConfigs(ctx context.Context, tokenID int64) ([]ProviderConfig, error) {
	var rows []configRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT provider_name, config, enabled, sort_order
		FROM token_provider_configs
		WHERE token_id = ? AND enabled = ?
		ORDER BY sort_order ASC, id ASC`, tokenID, true); err != nil {
		return nil, fmt.Errorf("provider configs: %w", err)
	}
	out := make([]ProviderConfig, 0, len(rows))
	for _, r := range rows {
		pc := ProviderConfig{Provider: r.Provider, Enabled: r.Enabled, SortOrder: r.SortOrder}
		if r.Config.Valid && r.Config.String != "" {
			if err := json.Unmarshal([]byte(r.Config.String), &pc.Config); err != nil {
				s.log.Warn().Err(err).Str("provider", r.Provider).Msg("provider_config_corrupt")
			}
		}
		out = append(out, pc)
	}
	return out, nil
}
