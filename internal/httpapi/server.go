// Package httpapi exposes the pipeline lifecycle over HTTP.
package httpapi

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"ragpipe/internal/config"
	"ragpipe/internal/domain"
	"ragpipe/internal/ingest"
	"ragpipe/internal/pipeline"
	"ragpipe/internal/service"
)

// Pipeline is the lifecycle the HTTP layer drives.
type Pipeline interface {
	Options() domain.Options
	Upload(ctx context.Context, files []ingest.File) (ingest.UploadReport, error)
	Configure(sel domain.Selection) (domain.Selection, error)
	Initialize(ctx context.Context) (pipeline.BuildReport, error)
	Query(ctx context.Context, question string) (domain.QueryResult, error)
	Reset(ctx context.Context) error
	Status() service.Status
}

type Server struct {
	app    *fiber.App
	cfg    *config.AppConfig
	logger *zap.Logger
}

func New(cfg *config.AppConfig, svc Pipeline, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")

	bodyLimit := cfg.Server.BodyLimitMB
	if bodyLimit <= 0 {
		bodyLimit = 200
	}
	app := fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		BodyLimit:             bodyLimit * 1024 * 1024,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(logger),
	})

	app.Use(fiberrecover.New(fiberrecover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e any) {
			logger.Error("panic in handler", zap.String("path", c.Path()), zap.Any("panic", e))
		},
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.CorsAllowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	h := &handler{svc: svc, cfg: cfg, logger: logger}
	h.RegisterRoutes(app.Group("/api"))

	return &Server{app: app, cfg: cfg, logger: logger}
}

func (s *Server) App() *fiber.App {
	return s.app
}

// Run blocks serving on the configured port.
func (s *Server) Run() error {
	s.logger.Info("server listening", zap.String("port", s.cfg.Server.Port))
	return s.app.Listen(":" + s.cfg.Server.Port)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
