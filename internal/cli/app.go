package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/emandor/lemme_search/internal/cache"
	"github.com/emandor/lemme_search/internal/config"
	"github.com/emandor/lemme_search/internal/db"
	"github.com/emandor/lemme_search/internal/dispatch"
	"github.com/emandor/lemme_search/internal/embedding"
	"github.com/emandor/lemme_search/internal/matcher"
	"github.com/emandor/lemme_search/internal/providers"
	"github.com/emandor/lemme_search/internal/search"
	"github.com/emandor/lemme_search/internal/telemetry"
	"github.com/emandor/lemme_search/internal/tokens"
	"github.com/emandor/lemme_search/internal/ws"
)

// App holds the process-wide resources shared by every command.
type App struct {
	Cfg      *config.Config
	DB       *sqlx.DB
	Redis    *redis.Client
	Store    *cache.SQLStore
	Writer   *cache.Writer
	Registry *providers.Registry
	Tokens   *tokens.Store
	Hub      *ws.Hub
	Search   *search.Service
	log      zerolog.Logger
}

// Build connects storage and wires the search pipeline. Redis is optional:
// without it embeddings and token lookups are simply not cached.
func Build(cfg *config.Config) (*App, error) {
	log := telemetry.Component("app")

	conn, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	a := &App{Cfg: cfg, DB: conn, log: log}

	if cfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		rdb, err := cache.ConnectRedis(ctx, cache.RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("redis_unavailable")
		} else {
			a.Redis = rdb
		}
	}

	var emb embedding.Service
	if cfg.EmbeddingEnabled() {
		client, err := embedding.NewClient(embedding.Config{
			BaseURL:          cfg.EmbeddingBaseURL,
			APIKey:           cfg.EmbeddingAPIKey,
			Model:            cfg.EmbeddingModel,
			QueryInstruction: cfg.EmbeddingQueryInstruction,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("embedding client: %w", err)
		}
		emb = client
		if a.Redis != nil {
			emb = embedding.NewCached(client, a.Redis, client.Model(), cfg.EmbeddingCacheTTL)
		}
	} else {
		log.Info().Msg("embedding_disabled_exact_cache_only")
	}

	a.Store = cache.NewSQLStore(conn, cfg.DBDriver, cache.Options{
		Embedder:       emb,
		FuzzyThreshold: cfg.FuzzyThreshold,
		TopK:           cfg.FuzzyTopK,
	})
	a.Writer = cache.NewWriter(a.Store, cfg.CacheWriteWorkers, cfg.CacheWriteQueue, 30*time.Second)
	a.Writer.Start()

	mcfg := matcher.DefaultConfig
	if cfg.MatchThreshold > 0 {
		mcfg.Threshold = cfg.MatchThreshold
	}
	a.Registry, err = providers.NewDefaultRegistry(providers.Deps{
		HTTP: providers.NewHTTPClient(providers.HTTPConfig{
			MaxRetries: cfg.ProviderMaxRetries,
			Backoff:    cfg.ProviderRetryBackoff,
			RPS:        cfg.ProviderRPS,
			Burst:      cfg.ProviderBurst,
		}),
		Matcher: matcher.New(mcfg),
		Cache:   a.Store,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	pf, err := config.LoadProviderFile(cfg.ProvidersFile)
	if err != nil {
		a.Close()
		return nil, err
	}

	d := dispatch.New(a.Registry, dispatch.Options{
		MaxConcurrent: cfg.DispatchMaxConcurrent,
		CallTimeout:   cfg.ProviderTimeout,
		Cache:         a.Store,
		Writer:        a.Writer,
	})
	a.Tokens = tokens.NewStore(conn, a.Redis, cfg.TokenCacheTTL)
	a.Hub = ws.NewHub()
	a.Search = search.NewService(d, cfg.BaseConfigs(pf), cfg.SearchDeadline, a.Hub)
	return a, nil
}

// Close drains pending cache writes before releasing connections.
func (a *App) Close() {
	if a.Writer != nil {
		if err := a.Writer.Close(); err != nil {
			a.log.Warn().Err(err).Msg("cache_writer_close")
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}
