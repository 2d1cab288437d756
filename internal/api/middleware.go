package api

import (
	"errors"
	"time"

	apperrors "github.com/gmsas95/takeoff/internal/errors"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// statusByCode maps application error codes to HTTP statuses.
var statusByCode = map[string]int{
	apperrors.CodeDocumentNotFound: fiber.StatusNotFound,
	apperrors.CodePageOutOfRange:   fiber.StatusNotFound,
	apperrors.CodePageNotFound:     fiber.StatusNotFound,
	apperrors.CodeItemNotFound:     fiber.StatusNotFound,
	apperrors.CodeImageNotFound:    fiber.StatusNotFound,
	apperrors.CodeInvalidInput:     fiber.StatusBadRequest,
	apperrors.CodeOCRUnavailable:   fiber.StatusServiceUnavailable,
	apperrors.CodeInternal:         fiber.StatusInternalServerError,
}

// errorResponse is the body of every failed request.
type errorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// classify returns the HTTP status and body for err. Internal details never
// reach the client.
func classify(err error) (int, errorResponse) {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code := apperrors.CodeInvalidInput
		if fe.Code >= fiber.StatusInternalServerError {
			code = apperrors.CodeInternal
		}
		return fe.Code, errorResponse{Code: code, Message: fe.Message}
	}

	code := apperrors.GetCode(err)
	if status, ok := statusByCode[code]; ok {
		return status, errorResponse{Code: code, Message: apperrors.GetMessage(err)}
	}

	return fiber.StatusInternalServerError, errorResponse{Code: apperrors.CodeInternal, Message: "internal error"}
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	status, body := classify(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("Request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	return c.Status(status).JSON(body)
}

func (s *Server) metricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status, _ = classify(err)
		}
		route := c.Route().Path
		if route == "" || (route == "/" && c.Path() != "/") {
			route = "unmatched"
		}
		s.metrics.RecordHTTPRequest(c.Method(), route, status, time.Since(start))
		return err
	}
}
