package api

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/rs/zerolog"

	perrors "github.com/nclamvn/prismy-production-sub002/internal/errors"
	"github.com/nclamvn/prismy-production-sub002/internal/health"
	"github.com/nclamvn/prismy-production-sub002/internal/metrics"
	"github.com/nclamvn/prismy-production-sub002/internal/requestid"
	"github.com/nclamvn/prismy-production-sub002/internal/workspace"
)

// ServerConfig holds configuration for the workspace API server.
type ServerConfig struct {
	ListenAddr  string
	Auth        AuthConfig
	RateLimit   RateLimitConfig
	CORSOrigins string
	Modes       []workspace.Mode
}

// Server is the workspace API Fiber application.
type Server struct {
	app    *fiber.App
	logger zerolog.Logger
	config ServerConfig
}

// NewServer creates and configures the API server. history and m may be nil.
func NewServer(
	cfg ServerConfig,
	manager *workspace.Manager,
	history HistoryStore,
	checker *health.Checker,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Server {
	logger = logger.With().Str("component", "api_server").Logger()

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler(logger),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ReadBufferSize:        8192,
		WriteBufferSize:       8192,
	})

	modes := cfg.Modes
	if len(modes) == 0 {
		modes = workspace.KnownModes
	}
	h := &handlers{
		manager: manager,
		history: history,
		modes:   make(map[workspace.Mode]bool, len(modes)),
		logger:  logger,
	}
	for _, md := range modes {
		h.modes[md] = true
	}

	s := &Server{app: app, logger: logger, config: cfg}
	s.setupMiddleware(cfg, m)
	s.setupRoutes(h, checker, m)
	return s
}

func (s *Server) setupMiddleware(cfg ServerConfig, m *metrics.Metrics) {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	s.app.Use(requestid.Middleware())

	if m != nil {
		s.app.Use(observe(m))
	}

	if cfg.CORSOrigins != "" {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CORSOrigins,
			AllowHeaders: "Origin, Content-Type, Accept, Accept-Language, Authorization, X-Request-ID, X-User-ID",
			AllowMethods: "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		}))
	}

	if cfg.RateLimit.RPS > 0 {
		s.app.Use(NewRateLimitMiddleware(cfg.RateLimit))
	}

	s.app.Use(NewAuthMiddleware(cfg.Auth, s.logger))

	// Access log
	s.app.Use(func(c *fiber.Ctx) error {
		path := c.Path()
		if path == "/healthz" || path == "/readyz" || path == "/metrics" {
			return c.Next()
		}

		ev := s.logger.Info().
			Str("method", c.Method()).
			Str("path", path).
			Str("ip", c.IP()).
			Str("request_id", requestid.FromFiber(c))
		if id, ok := identityFrom(c); ok {
			ev = ev.Str("user_id", id.UserID)
		}
		ev.Msg("api request")

		return c.Next()
	})
}

func (s *Server) setupRoutes(h *handlers, checker *health.Checker, m *metrics.Metrics) {
	s.app.Get("/healthz", health.LivenessHandler())
	if checker != nil {
		s.app.Get("/readyz", checker.ReadinessHandler())
	} else {
		s.app.Get("/readyz", health.LivenessHandler())
	}

	if m != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))
	} else {
		s.app.Get("/metrics", func(c *fiber.Ctx) error {
			return c.SendString("# No metrics collector configured\n")
		})
	}

	ws := s.app.Group("/api/v1/workspace", h.withWorkspace)

	ws.Get("/", h.getWorkspace)
	ws.Put("/mode", h.setMode)

	ws.Post("/activities", h.trackActivity)
	ws.Get("/activities", h.listActivities)

	ws.Post("/operations", h.startOperation)
	ws.Get("/operations", h.listOperations)
	ws.Patch("/operations/:id", h.updateOperation)

	ws.Post("/suggestions", h.addSuggestion)
	ws.Delete("/suggestions/:id", h.dismissSuggestion)
	ws.Post("/suggestions/:id/apply", h.applySuggestion)

	ws.Patch("/context", h.updateContext)
	ws.Post("/insights", h.addInsight)
	ws.Get("/efficiency", h.getEfficiency)
	ws.Post("/sync", h.syncNow)
}

// Start starts the server. Blocks until stopped.
func (s *Server) Start() error {
	addr := s.config.ListenAddr
	if addr == "" {
		addr = ":8090"
	}
	s.logger.Info().Str("addr", addr).Msg("workspace API server starting")
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("workspace API server shutting down")
	return s.app.Shutdown()
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// observe records request count and latency per matched route.
func observe(m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		code := c.Response().StatusCode()
		if err != nil {
			code = statusFor(err)
		}
		m.ObserveRequest(c.Method(), c.Route().Path, code, time.Since(start))
		return err
	}
}

func statusFor(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return perrors.HTTPStatus(err)
}

func customErrorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := statusFor(err)

		logger.Error().
			Err(err).
			Int("status", code).
			Str("path", c.Path()).
			Str("method", c.Method()).
			Str("request_id", requestid.FromFiber(c)).
			Msg("unhandled error")

		detail := err.Error()
		if code == fiber.StatusInternalServerError {
			detail = "An internal error occurred"
		}

		return c.Status(code).JSON(ProblemDetail{
			Type:     "error",
			Title:    statusTitle(code),
			Status:   code,
			Detail:   detail,
			Instance: c.Path(),
		})
	}
}

func statusTitle(code int) string {
	if t := utils.StatusMessage(code); t != "" {
		return t
	}
	return "Error"
}
