package mgmt

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/welcome-agent/internal/health"
	"github.com/p-blackswan/welcome-agent/internal/metrics"
	"github.com/p-blackswan/welcome-agent/internal/requestid"
	"github.com/p-blackswan/welcome-agent/internal/settings"
	"github.com/p-blackswan/welcome-agent/internal/welcome"
)

// ServerConfig holds configuration for the management API server.
type ServerConfig struct {
	ListenAddr  string
	AuthConfig  AuthConfig
	RateLimit   RateLimitConfig
	CORSOrigins string
}

// Deps are the components the API exposes.
type Deps struct {
	Settings *settings.Holder
	Commands *welcome.Commands
	Checker  *health.Checker
	Metrics  *metrics.Metrics
}

// Server is the management API Fiber application.
type Server struct {
	app    *fiber.App
	logger zerolog.Logger
	config ServerConfig
}

// NewServer creates and configures a new management API server. ctx bounds
// the background work of the middleware.
func NewServer(ctx context.Context, cfg ServerConfig, deps Deps, logger zerolog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler(logger),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ReadBufferSize:        8192,
		WriteBufferSize:       8192,
	})

	s := &Server{
		app:    app,
		logger: logger.With().Str("component", "mgmt_server").Logger(),
		config: cfg,
	}

	s.setupMiddleware(ctx, cfg, logger)
	s.setupRoutes(NewHandlers(deps.Settings, deps.Commands, logger), deps)

	return s
}

func (s *Server) setupMiddleware(ctx context.Context, cfg ServerConfig, logger zerolog.Logger) {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	s.app.Use(requestid.Middleware())

	if cfg.CORSOrigins != "" {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CORSOrigins,
			AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
			AllowMethods: "GET, POST, PUT, OPTIONS",
		}))
	}

	if cfg.RateLimit.RPS > 0 {
		s.app.Use(NewRateLimitMiddleware(ctx, cfg.RateLimit))
	}

	s.app.Use(NewAuthMiddleware(cfg.AuthConfig, logger))

	// Audit log, health endpoints excluded.
	s.app.Use(func(c *fiber.Ctx) error {
		if isHealthPath(c.Path()) {
			return c.Next()
		}

		id, _ := requestid.Lookup(c.UserContext())
		subject, _ := c.Locals("subject").(string)
		logger.Info().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Str("ip", c.IP()).
			Str("subject", subject).
			Str("request_id", id).
			Msg("mgmt api request")

		return c.Next()
	})
}

func (s *Server) setupRoutes(h *Handlers, deps Deps) {
	s.app.Get("/healthz", health.Liveness)
	if deps.Checker != nil {
		s.app.Get("/readyz", deps.Checker.Readiness)
	} else {
		s.app.Get("/readyz", health.Liveness)
	}

	if deps.Metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics.Handler()))
	}

	v1 := s.app.Group("/api/v1")

	v1.Get("/info", h.Info)
	v1.Get("/settings", h.GetSettings)
	v1.Get("/groups/:id", h.GetGroup)
	v1.Post("/groups/:id/preview", h.Preview)

	v1.Put("/groups/:id/message", requireRole(RoleOperator), h.SetMessage)
	v1.Post("/groups/:id/enable", requireRole(RoleOperator), h.Enable)
	v1.Post("/groups/:id/disable", requireRole(RoleOperator), h.Disable)
}

// Start starts the server. Blocks until stopped.
func (s *Server) Start() error {
	addr := s.config.ListenAddr
	if addr == "" {
		addr = ":8090"
	}

	s.logger.Info().Str("addr", addr).Msg("management API server starting")
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("management API server shutting down")
	return s.app.ShutdownWithContext(ctx)
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

func customErrorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		title := "Internal Server Error"
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			title = fe.Message
		}

		logger.Error().
			Err(err).
			Int("status", code).
			Str("path", c.Path()).
			Str("method", c.Method()).
			Msg("unhandled error")

		detail := err.Error()
		if code == fiber.StatusInternalServerError {
			detail = "An internal error occurred"
		}

		return c.Status(code).JSON(ProblemDetail{
			Type:     "internal_error",
			Title:    title,
			Status:   code,
			Detail:   detail,
			Instance: c.Path(),
		})
	}
}
