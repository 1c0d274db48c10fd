package search

import (
	"context"
	"strings"
	"time"

	"github.com/emandor/lemme_search/internal/aggregate"
	"github.com/emandor/lemme_search/internal/dispatch"
	"github.com/emandor/lemme_search/internal/model"
	"github.com/emandor/lemme_search/internal/providers"
	"github.com/emandor/lemme_search/internal/telemetry"
	"github.com/emandor/lemme_search/internal/tokens"
)

// Notifier streams progress of a running search.
type Notifier interface {
	BroadcastAnswer(requestID string, a model.Answer)
	BroadcastCompleted(requestID string, r model.Report)
}

// Service is the core pipeline: resolve providers, dispatch, aggregate.
type Service struct {
	dispatcher *dispatch.Dispatcher
	base       map[string]map[string]any
	deadline   time.Duration
	notify     Notifier
}

// NewService wires the pipeline. base holds the persisted base config of each
// provider; deadline bounds a whole search when positive; notify may be nil.
func NewService(d *dispatch.Dispatcher, base map[string]map[string]any, deadline time.Duration, notify Notifier) *Service {
	if base == nil {
		base = map[string]map[string]any{}
	}
	return &Service{dispatcher: d, base: base, deadline: deadline, notify: notify}
}

// Search runs one query through cache, providers and the vote.
func (s *Service) Search(ctx context.Context, requestID string, q model.Query, reqs []model.ProviderRequest) model.Report {
	log := telemetry.Component("search").With().Str("req_id", requestID).Logger()
	if s.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.deadline)
		defer cancel()
	}

	var obs dispatch.Observer
	if s.notify != nil {
		obs = func(a model.Answer) { s.notify.BroadcastAnswer(requestID, a) }
	}

	start := time.Now()
	answers := s.dispatcher.ResolveObserved(ctx, q, reqs, obs)
	report := aggregate.Summarize(q, answers)

	if s.notify != nil {
		s.notify.BroadcastCompleted(requestID, report)
	}

	ev := log.Info().
		Int("total", report.TotalProviders).
		Int("successful", report.SuccessfulProviders).
		Int("failed", report.FailedProviders).
		Int64("latency_ms", time.Since(start).Milliseconds())
	if u := report.UnifiedAnswer; u != nil {
		ev = ev.Str("answer", firstNonEmpty(u.AnswerKeyText, u.AnswerText))
	}
	ev.Msg("search_done")
	return report
}

// Providers decides which providers run and with what config. Providers named
// in the request win over the token's persisted list. Each config is the base
// config overlaid by the token's and then the request's.
func (s *Service) Providers(requested []model.ProviderRequest, persisted []tokens.ProviderConfig) []model.ProviderRequest {
	saved := make(map[string]tokens.ProviderConfig, len(persisted))
	for _, pc := range persisted {
		saved[pc.Provider] = pc
	}

	var out []model.ProviderRequest
	if len(requested) > 0 {
		for _, r := range requested {
			r.Name = strings.TrimSpace(r.Name)
			if r.Name == "" {
				continue
			}
			cfg := providers.MergeConfig(s.base[r.Name], saved[r.Name].Config)
			r.Config = providers.MergeConfig(cfg, r.Config)
			out = append(out, r)
		}
		return out
	}
	for _, pc := range persisted {
		if !pc.Enabled {
			continue
		}
		out = append(out, model.ProviderRequest{
			Name:   pc.Provider,
			Config: providers.MergeConfig(s.base[pc.Provider], pc.Config),
		})
	}
	return out
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
