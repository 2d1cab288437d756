// Package api exposes the line item operations over HTTP.
package api

import (
	"context"
	"time"

	"github.com/gmsas95/takeoff/internal/config"
	"github.com/gmsas95/takeoff/internal/lineitems"
	"github.com/gmsas95/takeoff/internal/metrics"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const version = "0.1.0"

// Server handles the HTTP API
type Server struct {
	app     *fiber.App
	config  *config.Config
	service *lineitems.Service
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// New creates a new API server
func New(cfg *config.Config, service *lineitems.Service, m *metrics.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}

	s := &Server{
		config:  cfg,
		service: service,
		metrics: m,
		logger:  logger,
	}

	bodyLimit := cfg.Server.BodyLimitMB
	if bodyLimit <= 0 {
		bodyLimit = 64
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "takeoff",
		ReadTimeout:           time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:          time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:           120 * time.Second,
		BodyLimit:             bodyLimit * 1024 * 1024,
		ErrorHandler:          s.errorHandler,
		Immutable:             true,
		DisableStartupMessage: true,
	})

	s.setupRoutes()
	return s
}

// App returns the underlying fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start starts the server
func (s *Server) Start() error {
	s.logger.Info("Listening", zap.String("addr", s.config.Addr()))
	return s.app.Listen(s.config.Addr())
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}
