package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	swagger "github.com/go-swagno/swagno-fiber/swagger"
	"github.com/saturnino-fabrica-de-software/vigia/internal/api/docs"
	"github.com/saturnino-fabrica-de-software/vigia/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/vigia/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/vigia/internal/cleanup"
	"github.com/saturnino-fabrica-de-software/vigia/internal/service"
)

type Dependencies struct {
	Service *service.CaptchaService
	// BlockWindow is advertised in Retry-After when a client is blocked
	BlockWindow time.Duration
	// ChallengeRateLimit caps challenge creation per client and minute
	ChallengeRateLimit int
	// CleanupInterval of zero disables the background sweep
	CleanupInterval time.Duration
}

type Router struct {
	app                 *fiber.App
	logger              *slog.Logger
	deps                *Dependencies
	rateLimiter         *middleware.RateLimiter
	cancelCleanupWorker context.CancelFunc
}

func NewRouter(logger *slog.Logger, deps *Dependencies) *Router {
	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(logger),
		AppName:      "Vigia CAPTCHA",
		BodyLimit:    64 * 1024,
	})

	return &Router{
		app:    app,
		logger: logger,
		deps:   deps,
	}
}

func (r *Router) Setup() {
	// Global middlewares
	r.app.Use(requestid.New())
	r.app.Use(middleware.Recover(r.logger))
	r.app.Use(middleware.Logger(r.logger))
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	sw := docs.NewSwagger()
	swagger.SwaggerHandler(r.app, sw.MustToJson())

	var checker handler.ReadinessChecker
	if r.deps != nil && r.deps.Service != nil {
		checker = r.deps.Service
	}
	healthHandler := handler.NewHealthHandler(checker)
	r.app.Get("/health", healthHandler.Health)
	r.app.Get("/ready", healthHandler.Ready)

	if r.deps == nil || r.deps.Service == nil {
		return
	}

	v1 := r.app.Group("/v1")

	r.rateLimiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
		PerEndpoint: middleware.ChallengeRateLimits(r.deps.ChallengeRateLimit),
	})
	v1.Use(r.rateLimiter.Handler())

	captchaHandler := handler.NewCaptchaHandler(r.deps.Service, r.deps.BlockWindow, r.logger)
	v1.Post("/captcha/challenges", captchaHandler.CreateChallenge)
	v1.Get("/captcha/challenges/:id", captchaHandler.GetChallenge)
	v1.Post("/captcha/challenges/:id/verify", captchaHandler.Verify)
	v1.Get("/captcha/stats", captchaHandler.Stats)

	ticketHandler := handler.NewTicketHandler(r.deps.Service, r.logger)
	v1.Post("/tickets/redeem", ticketHandler.Redeem)
	v1.Post("/tickets/check", ticketHandler.Check)

	if r.deps.CleanupInterval > 0 {
		worker := cleanup.NewWorker(r.deps.Service, r.logger, r.deps.CleanupInterval)
		ctx, cancel := context.WithCancel(context.Background())
		r.cancelCleanupWorker = cancel
		go worker.Run(ctx)
	}
}

func (r *Router) App() *fiber.App {
	return r.app
}

func (r *Router) Listen(addr string) error {
	return r.app.Listen(addr)
}

func (r *Router) Shutdown() error {
	if r.cancelCleanupWorker != nil {
		r.cancelCleanupWorker()
	}

	if r.rateLimiter != nil {
		r.rateLimiter.Stop()
	}

	return r.app.Shutdown()
}
