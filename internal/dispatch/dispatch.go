package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/emandor/lemme_search/internal/model"
	"github.com/emandor/lemme_search/internal/providers"
	"github.com/emandor/lemme_search/internal/telemetry"
)

const (
	DefaultMaxConcurrent = 20
	DefaultCallTimeout   = 30 * time.Second
)

// AnswerCache is the batched read side of the answer cache.
type AnswerCache interface {
	FindAnswers(ctx context.Context, q model.Query, providers []string) (map[string]model.Answer, error)
}

// Persister accepts new answers for background storage. It must not block.
type Persister interface {
	Enqueue(q model.Query, answers []model.Answer) bool
}

// Lookup resolves adapter names; *providers.Registry satisfies it.
type Lookup interface {
	Get(name string) (providers.Adapter, bool)
}

type Options struct {
	// MaxConcurrent bounds live provider calls across every request.
	MaxConcurrent int
	// CallTimeout bounds a single adapter call.
	CallTimeout time.Duration
	Cache       AnswerCache
	Writer      Persister
}

// Dispatcher fans a query out to providers. Cache hits are served without a
// call, the rest run concurrently behind one shared admission semaphore.
type Dispatcher struct {
	adapters Lookup
	cache    AnswerCache
	writer   Persister
	sem      *semaphore.Weighted
	timeout  time.Duration
	log      zerolog.Logger
}

func New(adapters Lookup, opts Options) *Dispatcher {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	return &Dispatcher{
		adapters: adapters,
		cache:    opts.Cache,
		writer:   opts.Writer,
		sem:      semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		timeout:  opts.CallTimeout,
		log:      telemetry.Component("dispatch"),
	}
}

// Observer is told about each answer as soon as it is known. Calls are
// serialized.
type Observer func(a model.Answer)

// Resolve returns one answer per distinct requested provider, in request order.
func (d *Dispatcher) Resolve(ctx context.Context, q model.Query, reqs []model.ProviderRequest) []model.Answer {
	return d.ResolveObserved(ctx, q, reqs, nil)
}

// ResolveObserved is Resolve with a progress callback.
func (d *Dispatcher) ResolveObserved(ctx context.Context, q model.Query, reqs []model.ProviderRequest, obs Observer) []model.Answer {
	reqs = dedupe(reqs)
	out := make([]model.Answer, len(reqs))
	if len(reqs) == 0 {
		return out
	}

	var obsMu sync.Mutex
	notify := func(a model.Answer) {
		if obs == nil {
			return
		}
		obsMu.Lock()
		defer obsMu.Unlock()
		obs(a)
	}

	adapters := make([]providers.Adapter, len(reqs))
	var cacheable []string
	for i, r := range reqs {
		a, ok := d.adapters.Get(r.Name)
		if !ok {
			out[i] = model.Failure(r.Name, q.Type, model.ErrConfig, fmt.Sprintf("%v %q", providers.ErrUnknownProvider, r.Name))
			notify(out[i])
			continue
		}
		adapters[i] = a
		if a.Cacheable() {
			cacheable = append(cacheable, r.Name)
		}
	}

	hits := d.lookup(ctx, q, cacheable)

	var g errgroup.Group
	for i, r := range reqs {
		a := adapters[i]
		if a == nil {
			continue
		}
		if hit, ok := hits[r.Name]; ok && a.Cacheable() {
			hit.Provider = r.Name
			hit.FromCache = true
			out[i] = hit
			notify(hit)
			continue
		}
		i, r := i, r
		g.Go(func() error {
			out[i] = d.call(ctx, a, q, r)
			notify(out[i])
			return nil
		})
	}
	_ = g.Wait()

	d.persist(q, adapters, out)
	return out
}

// lookup treats a failing cache as a full miss.
func (d *Dispatcher) lookup(ctx context.Context, q model.Query, names []string) map[string]model.Answer {
	if d.cache == nil || len(names) == 0 {
		return nil
	}
	start := time.Now()
	hits, err := d.cache.FindAnswers(ctx, q, names)
	if err != nil {
		d.log.Warn().Err(err).Msg("cache_lookup_failed")
		return nil
	}
	d.log.Debug().Int("requested", len(names)).Int("hits", len(hits)).
		Int64("latency_ms", time.Since(start).Milliseconds()).Msg("cache_lookup")
	return hits
}

// call runs one adapter under the admission bound and the per-call timeout.
// The slot is held until the adapter returns, even after the caller gave up.
func (d *Dispatcher) call(ctx context.Context, a providers.Adapter, q model.Query, r model.ProviderRequest) model.Answer {
	log := d.log.With().Str("provider", r.Name).Int("priority", r.Priority).Logger()

	if err := d.sem.Acquire(ctx, 1); err != nil {
		log.Warn().Err(err).Msg("provider_not_admitted")
		return model.Failure(r.Name, q.Type, providers.Classify(err), err.Error())
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan model.Answer, 1)
	go func() {
		defer d.sem.Release(1)
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().Interface("panic", rec).Msg("provider_panic")
				done <- model.Failure(r.Name, q.Type, model.ErrUnknown, "internal error")
			}
		}()
		done <- a.Search(callCtx, q, r)
	}()

	var ans model.Answer
	select {
	case ans = <-done:
	case <-callCtx.Done():
		ans = model.Failure(r.Name, q.Type, model.ErrNetwork, "timeout: "+callCtx.Err().Error())
	}
	ans = settle(r.Name, q, ans)

	ev := log.Info()
	if !ans.Success {
		ev = log.Warn().Str("error_type", string(ans.ErrorKind)).Str("error", ans.ErrorMessage)
	}
	ev.Int64("latency_ms", time.Since(start).Milliseconds()).Msg("provider_search_done")
	return ans
}

// settle enforces the answer invariant on whatever an adapter returned.
func settle(name string, q model.Query, a model.Answer) model.Answer {
	a.Provider = name
	a.FromCache = false
	if a.Success && !a.HasPayload() {
		return model.Failure(name, q.Type, model.ErrAPI, "empty answer")
	}
	if !a.Success {
		if a.ErrorKind == "" {
			a.ErrorKind = model.ErrUnknown
		}
		a.Choice, a.Judgement, a.Text = nil, nil, nil
	}
	return a
}

// persist hands new successful answers of cacheable providers to the writer.
func (d *Dispatcher) persist(q model.Query, adapters []providers.Adapter, out []model.Answer) {
	if d.writer == nil {
		return
	}
	var fresh []model.Answer
	for i, a := range out {
		if adapters[i] == nil || !adapters[i].Cacheable() {
			continue
		}
		if a.Success && !a.FromCache {
			fresh = append(fresh, a)
		}
	}
	if len(fresh) > 0 {
		d.writer.Enqueue(q, fresh)
	}
}

func dedupe(reqs []model.ProviderRequest) []model.ProviderRequest {
	seen := make(map[string]bool, len(reqs))
	out := make([]model.ProviderRequest, 0, len(reqs))
	for _, r := range reqs {
		if seen[r.Name] {
			continue
		}
		seen[r.Name] = true
		out = append(out, r)
	}
	return out
}
