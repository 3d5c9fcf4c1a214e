package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"go.uber.org/zap"

	"github.com/mapsync-service/internal/config"
	"github.com/mapsync-service/internal/delivery/http/handler"
	"github.com/mapsync-service/internal/delivery/http/middleware"
	apperrors "github.com/mapsync-service/internal/pkg/errors"
	"github.com/mapsync-service/internal/pkg/metrics"
)

// Server is the fiber gateway in front of a map session.
type Server struct {
	app    *fiber.App
	config *config.Config
	logger *zap.Logger

	sessionHandler *handler.SessionHandler
}

func NewServer(
	cfg *config.Config,
	logger *zap.Logger,
	sessionHandler *handler.SessionHandler,
) *Server {
	app := fiber.New(fiber.Config{
		AppName:      "MapSync Service",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
		ErrorHandler: customErrorHandler(logger),
	})

	s := &Server{
		app:            app,
		config:         cfg,
		logger:         logger,
		sessionHandler: sessionHandler,
	}

	s.setupMiddlewares()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddlewares() {
	s.app.Use(middleware.Recovery(s.logger))
	s.app.Use(middleware.Logger(s.logger))
	s.app.Use(middleware.CORS(s.config.Server.AllowOrigins))
	s.app.Use(metrics.Middleware())
	s.app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))
}

func (s *Server) setupRoutes() {
	s.app.Get("/metrics", metrics.Handler())

	api := s.app.Group("/api/v1")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now(),
		})
	})

	// Viewport and venues
	api.Post("/viewport", s.sessionHandler.MoveViewport)
	api.Post("/viewport/refresh", s.sessionHandler.RefreshVenues)

	// Route scoring and disruptions
	api.Post("/route", s.sessionHandler.DrawRoute)
	api.Delete("/route", s.sessionHandler.ClearRoute)
	api.Post("/route/compare", s.sessionHandler.CompareRoutes)
	api.Post("/route/disruptions/poll", s.sessionHandler.PollDisruptions)

	// Hazards
	api.Post("/hazards", s.sessionHandler.ReportHazard)
	api.Post("/hazards/sync", s.sessionHandler.SyncHazards)
	api.Delete("/hazards/:id", s.sessionHandler.RemoveHazard)

	// Display state
	api.Get("/state", s.sessionHandler.GetState)
	api.Delete("/advisories/:class", s.sessionHandler.DismissAdvisory)
}

// App exposes the fiber app for in-process tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Start() error {
	addr := s.config.GetServerAddr()
	s.logger.Info("Starting HTTP server", zap.String("address", addr))
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.app.ShutdownWithContext(ctx)
}

func customErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		appErr := apperrors.AsAppError(err)
		if appErr.StatusCode != 0 {
			code = appErr.StatusCode
		}

		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
			appErr = apperrors.New(apperrors.CodeInvalidRequest, e.Message, e.Code)
			if code >= fiber.StatusInternalServerError {
				appErr.Code = apperrors.CodeInternal
			}
		}

		logger.Error("HTTP Error",
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		)

		return c.Status(code).JSON(fiber.Map{
			"error": appErr,
		})
	}
}
