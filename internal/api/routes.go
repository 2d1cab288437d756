package api

import (
	"strings"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func (s *Server) setupRoutes() {
	s.app.Use(recover.New())
	s.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	origins := s.config.Security.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(origins, ","),
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	s.app.Use(s.metricsMiddleware())

	s.app.Get("/api/health", s.handleHealth)
	s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))

	api := s.app.Group("/api")

	docs := api.Group("/documents")
	docs.Post("/", s.handleUpload)
	docs.Get("/:doc", s.handleGetDocument)
	docs.Get("/:doc/items", s.handleListItems)
	docs.Get("/:doc/images/:file", s.handleGetImage)

	pages := docs.Group("/:doc/pages/:page")
	pages.Get("/", s.handlePagePreview)
	pages.Post("/extract", s.handleExtract)

	items := pages.Group("/items/:item")
	items.Get("/", s.handleGetItem)
	items.Delete("/", s.handleDeleteItem)
	items.Post("/ocr", s.handleOCR)
	items.Put("/metadata", s.handleUpdateMetadata)
}
