// Package app wires the takeoff components together and runs the server.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gmsas95/takeoff/internal/annotations"
	"github.com/gmsas95/takeoff/internal/api"
	"github.com/gmsas95/takeoff/internal/config"
	"github.com/gmsas95/takeoff/internal/documents"
	"github.com/gmsas95/takeoff/internal/janitor"
	"github.com/gmsas95/takeoff/internal/lineitems"
	"github.com/gmsas95/takeoff/internal/metrics"
	"github.com/gmsas95/takeoff/internal/ocr"
	"github.com/gmsas95/takeoff/internal/render"
	"go.uber.org/zap"
)

type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Registry *documents.Registry
	Store    *annotations.Store
	Service  *lineitems.Service
	Metrics  *metrics.Metrics
	Janitor  *janitor.Runner
	Server   *api.Server
	Version  string
}

// New builds every component from cfg. Nothing is started.
func New(cfg *config.Config, logger *zap.Logger, version string) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	registry, err := documents.NewRegistry(cfg.Storage.UploadDir, documents.NewPDFCounter(), logger)
	if err != nil {
		return nil, err
	}

	store, err := annotations.NewStore(cfg.Storage.InstanceDir, logger)
	if err != nil {
		return nil, err
	}

	renderer := render.NewPoppler(render.PopplerConfig{
		PdftoppmPath:   cfg.Render.PdftoppmPath,
		PdftocairoPath: cfg.Render.PdftocairoPath,
		DPI:            cfg.Render.DPI,
		Timeout:        cfg.RenderTimeout(),
	}, logger)
	if !renderer.IsAvailable() {
		logger.Warn("Poppler tools not found, page preview and extraction will fail")
	}

	m := metrics.New()
	service := lineitems.NewService(registry, renderer, store, newRecognizer(cfg, logger), logger,
		lineitems.WithUpscale(cfg.Render.Upscale),
		lineitems.WithMetrics(m),
	)

	app := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: registry,
		Store:    store,
		Service:  service,
		Metrics:  m,
		Server:   api.New(cfg, service, m, logger),
		Version:  version,
	}

	if cfg.Janitor.Enabled {
		app.Janitor, err = janitor.NewRunner(janitor.Config{Schedule: cfg.Janitor.Schedule}, service, logger)
		if err != nil {
			return nil, err
		}
	}

	return app, nil
}

// newRecognizer picks the OCR engine and puts it behind the rate limiter and
// circuit breaker.
func newRecognizer(cfg *config.Config, logger *zap.Logger) ocr.Recognizer {
	engineCfg := ocr.EngineConfig{
		BinaryPath: cfg.OCR.TesseractPath,
		Languages:  cfg.OCR.Languages,
		PSM:        cfg.OCR.PSM,
		Timeout:    cfg.OCRTimeout(),
	}

	var engine ocr.Recognizer
	switch cfg.OCR.Engine {
	case "gosseract":
		engine = ocr.NewGosseract(engineCfg)
	case "none":
		logger.Info("OCR disabled, refinement returns no text")
		return &ocr.Static{}
	default:
		cli := ocr.NewTesseractCLI(engineCfg, logger)
		if !cli.IsAvailable() {
			logger.Warn("tesseract not found, OCR requests will fail", zap.String("path", cfg.OCR.TesseractPath))
		}
		engine = cli
	}

	return ocr.NewGuard(engine, ocr.GuardConfig{
		RatePerSecond: cfg.OCR.RatePerSecond,
		Burst:         cfg.OCR.Burst,
		MaxFailures:   uint32(max(cfg.OCR.BreakerFailures, 0)),
		OpenTimeout:   time.Duration(cfg.OCR.BreakerTimeout) * time.Second,
	}, logger)
}

// RunServer serves until SIGINT or SIGTERM.
func (app *App) RunServer() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := app.Registry.Watch(ctx); err != nil {
			app.Logger.Warn("Upload directory watcher stopped", zap.Error(err))
		}
	}()

	if app.Janitor != nil {
		if err := app.Janitor.Start(); err != nil {
			app.Logger.Error("Failed to start janitor", zap.Error(err))
		}
	}

	go func() {
		if err := app.Server.Start(); err != nil {
			app.Logger.Fatal("Server error", zap.Error(err))
		}
	}()

	app.Logger.Info("Server started",
		zap.String("version", app.Version),
		zap.String("url", fmt.Sprintf("http://localhost:%d", app.Config.Server.Port)),
		zap.String("uploads", app.Config.Storage.UploadDir),
		zap.String("instance", app.Config.Storage.InstanceDir),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info("Shutting down...")

	if app.Janitor != nil {
		app.Janitor.Stop()
	}

	if err := app.Server.Shutdown(); err != nil {
		app.Logger.Error("Server shutdown error", zap.Error(err))
	}
}

// Sweep runs one orphan image sweep across all documents.
func (app *App) Sweep() (int, error) {
	if app.Janitor != nil {
		return app.Janitor.RunNow()
	}
	return app.Service.Sweep(context.Background())
}
