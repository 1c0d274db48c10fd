// Package providers wraps external answer sources behind one contract.
//
// An Adapter never returns an error or panics to its caller: every fault
// becomes a failed model.Answer with a classified error kind.
package providers

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/emandor/lemme_search/internal/model"
	"github.com/emandor/lemme_search/internal/telemetry"
)

type Adapter interface {
	Name() string
	// Cacheable reports whether successful answers may be written to the
	// answer cache.
	Cacheable() bool
	ValidateConfig(cfg map[string]any) error
	Search(ctx context.Context, q model.Query, req model.ProviderRequest) model.Answer
}

// Describer is implemented by adapters that publish catalogue metadata.
type Describer interface {
	Describe() Info
}

type ConfigField struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

type Info struct {
	Name      string        `json:"name"`
	Home      string        `json:"home,omitempty"`
	Free      bool          `json:"free"`
	Pay       bool          `json:"pay"`
	Cacheable bool          `json:"cacheable"`
	Fields    []ConfigField `json:"config_fields"`
}

// guard runs fn and turns its error or panic into a failed answer for name.
func guard(name string, q model.Query, fn func() (model.Answer, error)) (ans model.Answer) {
	defer func() {
		if r := recover(); r != nil {
			ans = model.Failure(name, q.Type, model.ErrUnknown, "internal error")
			lg := logger()
			lg.Error().Str("provider", name).Interface("panic", r).Msg("provider_panic")
		}
	}()

	a, err := fn()
	if err != nil {
		return model.Failure(name, q.Type, Classify(err), err.Error())
	}
	a.Provider = name
	if !a.HasPayload() {
		return model.Failure(name, q.Type, model.ErrAPI, "empty answer")
	}
	a.Success = true
	a.ErrorKind, a.ErrorMessage = "", ""
	return a
}

func logger() zerolog.Logger { return telemetry.Component("providers") }
