package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/emandor/lemme_search/internal/telemetry"
	"github.com/emandor/lemme_search/internal/tokens"
)

const TokenKey = "apiToken"

type Authenticator interface {
	Authenticate(ctx context.Context, plain string) (*tokens.Token, error)
}

// TokenAuth accepts "Bearer <token>", "ApiKey <token>" or the bare token in
// the Authorization header.
func TokenAuth(auth Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		plain := bearer(c.Get(fiber.HeaderAuthorization))
		if plain == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization header"})
		}
		tok, err := auth.Authenticate(c.UserContext(), plain)
		if err != nil {
			if !errors.Is(err, tokens.ErrNotFound) && !errors.Is(err, tokens.ErrDisabled) {
				lg := telemetry.L()
				lg.Error().Err(err).Str("req_id", RequestIDFrom(c)).Msg("token_auth_failed")
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid api token"})
		}
		c.Locals(TokenKey, tok)
		return c.Next()
	}
}

// TokenFrom returns the token set by TokenAuth, or nil.
func TokenFrom(c *fiber.Ctx) *tokens.Token {
	tok, _ := c.Locals(TokenKey).(*tokens.Token)
	return tok
}

func bearer(h string) string {
	h = strings.TrimSpace(h)
	for _, scheme := range []string{"Bearer ", "ApiKey "} {
		if len(h) >= len(scheme) && strings.EqualFold(h[:len(scheme)], scheme) {
			return strings.TrimSpace(h[len(scheme):])
		}
	}
	return h
}
