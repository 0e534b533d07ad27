package middleware

import (
	"fmt"

	"github.com/booktalk/backend/internal/apperr"
	"github.com/booktalk/backend/pkg/logger"
	"github.com/gofiber/fiber/v2"
)

// ErrorHandler is installed as fiber.Config.ErrorHandler and is the only
// place error bodies are written.
func ErrorHandler(c *fiber.Ctx, err error) error {
	status, kind, message := apperr.Classify(err)

	if status >= fiber.StatusInternalServerError {
		details := map[string]interface{}{
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     status,
			"request_id": logger.GetRequestID(c),
		}
		if userID := logger.GetUserIDFromContext(c); userID != nil {
			logger.ErrorWithUser(*userID, "request_failed", err, details)
		} else {
			logger.Error("request_failed", err, details)
		}
	}

	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error": fiber.Map{
			"kind":    kind,
			"message": message,
		},
	})
}

// NotFound answers requests that matched no route.
func NotFound(c *fiber.Ctx) error {
	return apperr.NotFound(fmt.Sprintf("route %s %s not found", c.Method(), c.Path()))
}

// respond resolves err into a response now, so that outer middleware can
// observe the final status code.
func respond(c *fiber.Ctx, err error) {
	if err == nil {
		return
	}
	if handlerErr := c.App().ErrorHandler(c, err); handlerErr != nil {
		_ = c.SendStatus(fiber.StatusInternalServerError)
	}
}
