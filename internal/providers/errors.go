package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"unicode/utf8"

	"github.com/emandor/lemme_search/internal/matcher"
	"github.com/emandor/lemme_search/internal/model"
)

var (
	ErrDuplicateProvider = errors.New("provider already registered")
	ErrUnknownProvider   = errors.New("unknown provider")
)

// StatusError is a non-2xx upstream HTTP reply.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Code, truncate(e.Body, 200))
}

// APIError means the upstream answered but reported failure or no result.
type APIError struct{ Msg string }

func (e *APIError) Error() string { return e.Msg }

func apiErrorf(format string, args ...any) error {
	return &APIError{Msg: fmt.Sprintf(format, args...)}
}

// ConfigError wraps a missing or invalid adapter configuration.
type ConfigError struct{ Err error }

func (e *ConfigError) Error() string { return "invalid config: " + e.Err.Error() }
func (e *ConfigError) Unwrap() error { return e.Err }

// Classify maps err onto the failure taxonomy.
func Classify(err error) model.ErrorKind {
	if err == nil {
		return ""
	}
	var (
		cfgErr    *ConfigError
		statusErr *StatusError
		apiErr    *APIError
		netErr    net.Error
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &cfgErr):
		return model.ErrConfig
	case errors.Is(err, matcher.ErrNoMatch):
		return model.ErrMatch
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return model.ErrNetwork
	case errors.As(err, &netErr):
		return model.ErrNetwork
	case errors.As(err, &statusErr), errors.As(err, &apiErr):
		return model.ErrAPI
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return model.ErrAPI
	default:
		return model.ErrUnknown
	}
}

// truncate keeps at most n bytes of s without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}
