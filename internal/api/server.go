package api

import (
	"errors"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/illegalcall/inquiry-relay/internal/config"
	"github.com/illegalcall/inquiry-relay/internal/mailer"
	"github.com/illegalcall/inquiry-relay/internal/metrics"
)

const landingMessage = "Hello World!"

type Server struct {
	app     *fiber.App
	cfg     *config.Config
	mailer  mailer.Mailer
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewServer(cfg *config.Config, m mailer.Mailer, mt *metrics.Metrics, logger *slog.Logger) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "inquiry-relay",
		BodyLimit:             cfg.Upload.BodyLimit(),
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(logger),
	})

	// Middleware
	app.Use(fiberrecover.New(fiberrecover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e interface{}) {
			logger.Error("Recovered from panic", "path", c.Path(), "panic", e, "stack", string(debug.Stack()))
		},
	}))
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${ip} ${method} ${path} ${status} ${latency}\n",
		Output: os.Stdout,
	}))

	server := &Server{
		app:     app,
		cfg:     cfg,
		mailer:  m,
		metrics: mt,
		logger:  logger,
	}

	// Routes
	server.setupRoutes()

	return server
}

func (s *Server) setupRoutes() {
	// Cross-origin policy applies to every route, static files included.
	s.app.Use(originGuard(s.cfg.CORS.AllowedOrigins))
	// cors treats an empty AllowOrigins as "*", so it is only mounted with a list.
	if len(s.cfg.CORS.AllowedOrigins) > 0 {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: strings.Join(s.cfg.CORS.AllowedOrigins, ","),
			AllowMethods: strings.Join([]string{fiber.MethodGet, fiber.MethodPost}, ","),
			AllowHeaders: fiber.HeaderContentType,
		}))
	} else {
		s.logger.Warn("No CORS origins configured; cross-origin requests will be rejected")
	}

	s.app.Get("/", s.handleRoot)
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))

	api := s.app.Group("/api")
	api.Post("/submit", enforceUploadLimits(s.cfg.Upload, s.metrics), s.handleSubmit)

	// Static assets come last so they never shadow the routes above.
	if s.cfg.Server.StaticDir != "" {
		s.app.Static("/", s.cfg.Server.StaticDir)
	}
}

func (s *Server) Start() error {
	s.logger.Info("Server running", "addr", s.cfg.Server.Addr())
	return s.app.Listen(s.cfg.Server.Addr())
}

// Shutdown stops accepting connections and waits up to timeout for in-flight
// requests to finish.
func (s *Server) Shutdown(timeout time.Duration) error {
	return s.app.ShutdownWithTimeout(timeout)
}

func (s *Server) handleRoot(c *fiber.Ctx) error {
	return c.SendString(landingMessage)
}

// errorHandler answers in plain text. Fiber errors keep their status and
// message; anything else is logged and reported as a bare 500.
func errorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal Server Error"

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			code = fiberErr.Code
			message = fiberErr.Message
		} else {
			logger.Error("Unhandled request error", "method", c.Method(), "path", c.Path(), "error", err)
		}

		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
		return c.Status(code).SendString(message)
	}
}
