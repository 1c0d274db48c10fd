package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv, AppPort string
	DBDriver, DBDSN string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	CORSOrigins     []string

	OpenAIKey, OpenAIModel       string
	AnthropicKey, AnthropicModel string
	GeminiKey, GeminiModel       string

	DispatchMaxConcurrent int
	ProviderTimeout       time.Duration
	ProviderMaxRetries    int
	ProviderRetryBackoff  time.Duration
	ProviderRPS           float64
	ProviderBurst         int
	SearchDeadline        time.Duration

	CacheWriteWorkers int
	CacheWriteQueue   int
	FuzzyThreshold    float64
	FuzzyTopK         int
	MatchThreshold    float64

	EmbeddingBaseURL          string
	EmbeddingAPIKey           string
	EmbeddingModel            string
	EmbeddingQueryInstruction string
	EmbeddingCacheTTL         time.Duration

	TokenCacheTTL   time.Duration
	RateLimitMax    int
	RateLimitWindow time.Duration
	ProvidersFile   string
}

func Load() *Config {
	_ = godotenv.Load()

	c := &Config{
		AppEnv:                    get("APP_ENV", "dev"),
		AppPort:                   get("APP_PORT", "8060"),
		DBDriver:                  get("DB_DRIVER", "mysql"),
		DBDSN:                     must("DB_DSN"),
		RedisAddr:                 get("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:             get("REDIS_PASSWORD", ""),
		RedisDB:                   atoi(get("REDIS_DB", "0")),
		CORSOrigins:               split(get("CORS_ORIGINS", "*")),
		OpenAIKey:                 get("OPENAI_API_KEY", ""),
		OpenAIModel:               get("OPENAI_MODEL", "gpt-4o-mini"),
		AnthropicKey:              get("ANTHROPIC_API_KEY", ""),
		AnthropicModel:            get("ANTHROPIC_MODEL", "claude-3-5-sonnet-latest"),
		GeminiKey:                 get("GEMINI_API_KEY", ""),
		GeminiModel:               get("GEMINI_MODEL", "gemini-2.5-flash"),
		DispatchMaxConcurrent:     GetEnvInt("DISPATCH_MAX_CONCURRENT", 20),
		ProviderTimeout:           mustDuration(get("PROVIDER_TIMEOUT", "30s")),
		ProviderMaxRetries:        GetEnvInt("PROVIDER_MAX_RETRIES", 2),
		ProviderRetryBackoff:      mustDuration(get("PROVIDER_RETRY_BACKOFF", "200ms")),
		ProviderRPS:               atof(get("PROVIDER_RPS", "0")),
		ProviderBurst:             GetEnvInt("PROVIDER_BURST", 2),
		SearchDeadline:            mustDuration(get("SEARCH_DEADLINE", "0s")),
		CacheWriteWorkers:         GetEnvInt("CACHE_WRITE_WORKERS", 4),
		CacheWriteQueue:           GetEnvInt("CACHE_WRITE_QUEUE", 256),
		FuzzyThreshold:            atof(get("FUZZY_THRESHOLD", "0.82")),
		FuzzyTopK:                 GetEnvInt("FUZZY_TOP_K", 5),
		MatchThreshold:            atof(get("MATCH_THRESHOLD", "0.5")),
		EmbeddingBaseURL:          get("EMBEDDING_BASE_URL", ""),
		EmbeddingAPIKey:           get("EMBEDDING_API_KEY", ""),
		EmbeddingModel:            get("EMBEDDING_MODEL", "bge-m3"),
		EmbeddingQueryInstruction: get("EMBEDDING_QUERY_INSTRUCTION", "Represent this question for retrieving the same or highly similar exam questions: "),
		EmbeddingCacheTTL:         mustDuration(get("EMBEDDING_CACHE_TTL", "168h")),
		TokenCacheTTL:             mustDuration(get("TOKEN_CACHE_TTL", "5m")),
		RateLimitMax:              GetEnvInt("RATE_LIMIT_MAX", 100),
		RateLimitWindow:           mustDuration(get("RATE_LIMIT_WINDOW", "30s")),
		ProvidersFile:             get("PROVIDERS_FILE", "providers.toml"),
	}
	return c
}

// EmbeddingEnabled reports whether the fuzzy cache path can be used.
func (c *Config) EmbeddingEnabled() bool { return c.EmbeddingBaseURL != "" }

func GetEnvInt(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return d
}

func get(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
func must(k string) string {
	v := os.Getenv(k)
	if v == "" {
		log.Fatalf("missing env %s", k)
	}
	return v
}
func atoi(s string) int { i, _ := strconv.Atoi(s); return i }
func atof(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}
func mustDuration(s string) time.Duration { d, _ := time.ParseDuration(s); return d }
func split(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func GetEnv(k, d string) string {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	return v
}
