package middleware

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// WSRequestIDKey carries the optional ?request_id= of a websocket upgrade so
// the socket can join that search's room before any message is read.
const WSRequestIDKey = "wsRequestID"

// WSUpgrade admits only websocket upgrades on the route.
func WSUpgrade() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		if rid := c.Query("request_id"); rid != "" {
			c.Locals(WSRequestIDKey, rid)
		}
		return c.Next()
	}
}
