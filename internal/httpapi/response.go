package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"ragpipe/internal/domain"
)

// Response is the JSON envelope of every endpoint.
type Response struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	Data      any    `json:"data,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

func success(message string, data any) Response {
	return Response{Status: "success", Message: message, Data: data}
}

func failure(err error, data any) Response {
	return Response{Status: "error", Message: err.Error(), Data: data, ErrorKind: domain.Kind(err)}
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, domain.ErrInvalidConfiguration),
		errors.Is(err, domain.ErrNotConfigured),
		errors.Is(err, domain.ErrNoDocuments),
		errors.Is(err, domain.ErrExtractionFailed),
		errors.Is(err, domain.ErrInvalidInput):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrChunkingFailed):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotReady), errors.Is(err, domain.ErrNotInitialized):
		return fiber.StatusConflict
	case errors.Is(err, domain.ErrCollaboratorFailure):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// errorHandler renders any error returned by a handler as an error envelope.
func errorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := statusFor(err)
		if code >= fiber.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Int("status", code),
				zap.Error(err))
		} else {
			logger.Info("request rejected",
				zap.String("path", c.Path()),
				zap.Int("status", code),
				zap.String("error_kind", domain.Kind(err)),
				zap.Error(err))
		}
		return c.Status(code).JSON(failure(err, nil))
	}
}
