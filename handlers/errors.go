// handlers/errors.go - Maps workflow errors onto HTTP responses
package handlers

import (
	"errors"
	"strings"
	"teamhub/logger"
	"teamhub/services"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
)

var statusBySentinel = []struct {
	err    error
	status int
}{
	{services.ErrNotFound, fiber.StatusNotFound},
	{services.ErrConflict, fiber.StatusConflict},
	{services.ErrPreconditionFailed, fiber.StatusPreconditionFailed},
	{services.ErrForbidden, fiber.StatusForbidden},
	{services.ErrInvalidInput, fiber.StatusBadRequest},
}

// NewErrorHandler is the app-wide Fiber error handler. Server errors are
// reported to Sentry and their message is hidden in production.
func NewErrorHandler(log *logger.Logger, production bool) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code, message := classify(err)

		if code >= fiber.StatusInternalServerError {
			log.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
			sentry.CaptureException(err)
			if production {
				message = "An error occurred. Please try again later."
			}
		}

		return c.Status(code).JSON(fiber.Map{
			"success": false,
			"error":   message,
		})
	}
}

func classify(err error) (int, string) {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code, fe.Message
	}
	for _, s := range statusBySentinel {
		if errors.Is(err, s.err) {
			return s.status, publicMessage(err, s.err)
		}
	}
	return fiber.StatusInternalServerError, err.Error()
}

// publicMessage drops the trailing sentinel text so clients see the
// human-readable part only.
func publicMessage(err, sentinel error) string {
	msg := err.Error()
	if msg == sentinel.Error() {
		return msg
	}
	if trimmed := strings.TrimSuffix(msg, ": "+sentinel.Error()); trimmed != msg {
		return trimmed
	}
	return strings.TrimPrefix(msg, sentinel.Error()+": ")
}
