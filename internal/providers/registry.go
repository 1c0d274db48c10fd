package providers

import (
	"fmt"

	"github.com/emandor/lemme_search/internal/matcher"
)

// Registry maps provider names to adapters in registration order.
type Registry struct {
	order    []string
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: map[string]Adapter{}}
}

func (r *Registry) Register(a Adapter) error {
	name := a.Name()
	if _, ok := r.adapters[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateProvider, name)
	}
	r.adapters[name] = a
	r.order = append(r.order, name)
	return nil
}

func (r *Registry) Get(name string) (Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Catalogue describes every registered adapter.
func (r *Registry) Catalogue() []Info {
	out := make([]Info, 0, len(r.order))
	for _, name := range r.order {
		a := r.adapters[name]
		info := Info{Name: name, Cacheable: a.Cacheable()}
		if d, ok := a.(Describer); ok {
			info = d.Describe()
			info.Name, info.Cacheable = name, a.Cacheable()
		}
		out = append(out, info)
	}
	return out
}

// Deps are the process-wide resources handed to built-in adapters.
type Deps struct {
	HTTP    *HTTPClient
	Matcher *matcher.Matcher
	// Cache backs the Local adapter; nil leaves Local unregistered.
	Cache AnswerLookup
}

// Builtin returns the adapters shipped with the service.
func Builtin(d Deps) []Adapter {
	if d.HTTP == nil {
		d.HTTP = NewHTTPClient(HTTPConfig{})
	}
	if d.Matcher == nil {
		d.Matcher = matcher.New(matcher.DefaultConfig)
	}
	var out []Adapter
	if d.Cache != nil {
		out = append(out, NewLocal(d.Cache))
	}
	return append(out,
		NewWanneng(d.HTTP, d.Matcher),
		NewEnncy(d.HTTP, d.Matcher),
		NewOpenAI(d.HTTP, d.Matcher),
		NewAnthropic(d.HTTP, d.Matcher),
		NewGemini(d.HTTP, d.Matcher),
	)
}

func NewDefaultRegistry(d Deps) (*Registry, error) {
	r := NewRegistry()
	for _, a := range Builtin(d) {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}
