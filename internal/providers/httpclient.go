package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/emandor/lemme_search/internal/model"
)

type HTTPConfig struct {
	// MaxRetries bounds extra attempts after a network error or HTTP 429.
	MaxRetries int
	Backoff    time.Duration
	// RPS limits outbound requests per provider; zero disables limiting.
	RPS   float64
	Burst int
}

// HTTPClient is the one outbound connection pool shared by every adapter.
type HTTPClient struct {
	client *http.Client
	cfg    HTTPConfig

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	if cfg.Backoff <= 0 {
		cfg.Backoff = 200 * time.Millisecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = 100
	transport.MaxIdleConnsPerHost = 20
	transport.IdleConnTimeout = 90 * time.Second
	return &HTTPClient{
		client:   &http.Client{Transport: transport},
		cfg:      cfg,
		limiters: map[string]*rate.Limiter{},
	}
}

func (c *HTTPClient) limiter(provider string) *rate.Limiter {
	if c.cfg.RPS <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[provider]
	if !ok {
		l = rate.NewLimiter(rate.Limit(c.cfg.RPS), c.cfg.Burst)
		c.limiters[provider] = l
	}
	return l
}

// Do sends the request built by newReq and returns the body of a 2xx reply.
// newReq is called once per attempt because request bodies are consumed.
func (c *HTTPClient) Do(ctx context.Context, provider string, newReq func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := c.cfg.Backoff << (attempt - 1)
			lg := logger()
			lg.Debug().Str("provider", provider).Int("attempt", attempt).
				Dur("backoff", wait).Err(lastErr).Msg("provider_retry")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		body, err := c.once(ctx, provider, newReq)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable(ctx, err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *HTTPClient) once(ctx context.Context, provider string, newReq func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	if l := c.limiter(provider); l != nil {
		if err := l.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := newReq(ctx)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests
	}
	return Classify(err) == model.ErrNetwork
}
