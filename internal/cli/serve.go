package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"

	"github.com/emandor/lemme_search/internal/config"
	"github.com/emandor/lemme_search/internal/middleware"
	"github.com/emandor/lemme_search/internal/search"
	"github.com/emandor/lemme_search/internal/telemetry"
)

func NewServeCmd() *cobra.Command {
	var migrateFirst bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), migrateFirst)
		},
	}
	cmd.Flags().BoolVar(&migrateFirst, "migrate", false, "apply migrations before serving")
	return cmd
}

func runServe(ctx context.Context, migrateFirst bool) error {
	cfg := config.Load()
	log := telemetry.L()

	a, err := Build(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if migrateFirst {
		if err := migrateDB(a); err != nil {
			return err
		}
	}

	app := NewServer(a)
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.AppPort).Msg("booting lemme_search")
		errCh <- app.Listen(":" + cfg.AppPort)
	}()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting_down")
	return app.ShutdownWithTimeout(10 * time.Second)
}

// NewServer builds the fiber app with middleware and every route.
func NewServer(a *App) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "lemme_search",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
	})

	app.Use(middleware.RequestID())
	app.Use(middleware.Recover())
	app.Use(middleware.SecureHeaders())
	app.Use(middleware.CORS(a.Cfg.CORSOrigins))
	app.Use(middleware.RequestLog())
	app.Use(middleware.RateLimiter(a.Cfg.RateLimitMax, a.Cfg.RateLimitWindow))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	app.Get("/ws", middleware.WSUpgrade(), websocket.New(a.Hub.Handle(middleware.WSRequestIDKey)))

	search.NewHandler(a.Search, a.Tokens, a.Registry).Routes(app, middleware.TokenAuth(a.Tokens))
	return app
}
