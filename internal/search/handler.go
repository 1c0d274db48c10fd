package search

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/emandor/lemme_search/internal/middleware"
	"github.com/emandor/lemme_search/internal/model"
	"github.com/emandor/lemme_search/internal/providers"
	"github.com/emandor/lemme_search/internal/quota"
	"github.com/emandor/lemme_search/internal/telemetry"
	"github.com/emandor/lemme_search/internal/tokens"
)

// TokenStore is what the handlers need from the token store.
type TokenStore interface {
	ProviderConfigs(ctx context.Context, tokenID int64) ([]tokens.ProviderConfig, error)
	SetProviderConfig(ctx context.Context, tokenID int64, pc tokens.ProviderConfig) error
	ConsumeSearch(ctx context.Context, tokenID int64) error
}

type Handler struct {
	svc      *Service
	tokens   TokenStore
	registry *providers.Registry
}

func NewHandler(svc *Service, ts TokenStore, reg *providers.Registry) *Handler {
	return &Handler{svc: svc, tokens: ts, registry: reg}
}

// Routes mounts the public and token-protected endpoints.
func (h *Handler) Routes(app fiber.Router, auth fiber.Handler) {
	app.Get("/api/providers/available", h.Available)
	app.Post("/v1/adapter-service/search", auth, h.Search)
	app.Get("/api/tokens/me/providers", auth, h.ListProviderConfigs)
	app.Put("/api/tokens/me/providers/:name", auth, h.PutProviderConfig)
}

type searchRequest struct {
	Query     queryBody               `json:"query"`
	Providers []model.ProviderRequest `json:"providers"`
}

type queryBody struct {
	Content string   `json:"content"`
	Options []string `json:"options"`
	Type    *int     `json:"type"`
}

func (b queryBody) toQuery() (model.Query, error) {
	q := model.Query{Content: strings.TrimSpace(b.Content), Options: b.Options}
	if q.Content == "" {
		return q, errors.New("query.content is required")
	}
	if b.Type != nil {
		q.Type = model.QuestionType(*b.Type)
	}
	if !q.Type.Valid() {
		return q, errors.New("query.type must be between 0 and 4")
	}
	for _, o := range q.Options {
		if strings.TrimSpace(o) == "" {
			return q, errors.New("query.options must not contain empty entries")
		}
	}
	if len(q.Options) > 26 {
		return q, errors.New("query.options supports at most 26 entries")
	}
	return q, nil
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func (h *Handler) Search(c *fiber.Ctx) error {
	rid := middleware.RequestIDFrom(c)
	tok := middleware.TokenFrom(c)
	log := telemetry.L().With().Str("req_id", rid).Logger()
	if tok == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	log = log.With().Int64("token_id", tok.ID).Logger()

	var body searchRequest
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid json body")
	}
	q, err := body.Query.toQuery()
	if err != nil {
		return badRequest(c, err.Error())
	}

	if !tok.Quota().CanSearch() {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": quota.ErrQuotaExceeded.Error()})
	}

	ctx := c.UserContext()
	persisted, err := h.tokens.ProviderConfigs(ctx, tok.ID)
	if err != nil {
		log.Error().Err(err).Msg("provider_configs_failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "db error"})
	}
	reqs := h.svc.Providers(body.Providers, persisted)
	if len(reqs) == 0 {
		return badRequest(c, "no providers specified")
	}

	report := h.svc.Search(ctx, rid, q, reqs)

	if err := h.tokens.ConsumeSearch(ctx, tok.ID); err != nil {
		// the search already ran; the next one is refused by the precheck
		log.Warn().Err(err).Msg("quota_consume_failed")
	}
	return c.JSON(report)
}

func (h *Handler) Available(c *fiber.Ctx) error {
	return c.JSON(h.registry.Catalogue())
}

func (h *Handler) ListProviderConfigs(c *fiber.Ctx) error {
	tok := middleware.TokenFrom(c)
	if tok == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	list, err := h.tokens.ProviderConfigs(c.UserContext(), tok.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "db error"})
	}
	return c.JSON(list)
}

type providerConfigBody struct {
	Config    map[string]any `json:"config"`
	Enabled   *bool          `json:"enabled"`
	SortOrder int            `json:"sort_order"`
}

// PutProviderConfig stores a provider config for the calling token after the
// adapter accepted it merged over the base config.
func (h *Handler) PutProviderConfig(c *fiber.Ctx) error {
	tok := middleware.TokenFrom(c)
	if tok == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	name, err := url.PathUnescape(c.Params("name"))
	if err != nil {
		return badRequest(c, "invalid provider name")
	}
	a, ok := h.registry.Get(name)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown provider"})
	}

	var body providerConfigBody
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid json body")
	}
	merged := providers.MergeConfig(h.svc.base[name], body.Config)
	if err := a.ValidateConfig(merged); err != nil {
		return badRequest(c, err.Error())
	}

	pc := tokens.ProviderConfig{Provider: name, Config: body.Config, Enabled: true, SortOrder: body.SortOrder}
	if body.Enabled != nil {
		pc.Enabled = *body.Enabled
	}
	if err := h.tokens.SetProviderConfig(c.UserContext(), tok.ID, pc); err != nil {
		lg := telemetry.L()
		lg.Error().Err(err).Str("req_id", middleware.RequestIDFrom(c)).Msg("provider_config_save_failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "db error"})
	}
	return c.JSON(pc)
}
