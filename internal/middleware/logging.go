package middleware

import (
	"time"

	"github.com/booktalk/backend/pkg/logger"
	"github.com/gofiber/fiber/v2"
)

func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		requestID := c.Get(fiber.HeaderXRequestID)
		if requestID == "" {
			requestID = logger.GenerateRequestID()
		}
		c.Locals(logger.RequestIDKey, requestID)
		c.Set(fiber.HeaderXRequestID, requestID)

		err := c.Next()
		respond(c, err)

		statusCode := c.Response().StatusCode()
		details := map[string]interface{}{
			"method":        c.Method(),
			"path":          c.Path(),
			"status_code":   statusCode,
			"latency_ms":    time.Since(start).Milliseconds(),
			"user_agent":    c.Get(fiber.HeaderUserAgent),
			"ip":            c.IP(),
			"request_body":  logger.GetRequestBodySummary(c),
			"response_body": logger.GetResponseSizeSummary(c),
			"request_id":    requestID,
		}

		userID := logger.GetUserIDFromContext(c)
		switch {
		case userID != nil && statusCode >= 400:
			logger.WarnWithUser(*userID, "http_request", details)
		case userID != nil:
			logger.InfoWithUser(*userID, "http_request", details)
		case statusCode >= 400:
			logger.Warn("http_request", details)
		default:
			logger.Info("http_request", details)
		}

		return nil
	}
}

// SecurityLogger records denied and unknown requests separately so they can
// be audited without scanning every access line.
func SecurityLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		respond(c, err)

		var reason string
		switch c.Response().StatusCode() {
		case fiber.StatusUnauthorized:
			reason = "unauthenticated"
		case fiber.StatusForbidden:
			reason = "access_denied"
		case fiber.StatusTooManyRequests:
			reason = "rate_limited"
		default:
			return nil
		}

		details := map[string]interface{}{
			"method": c.Method(),
			"path":   c.Path(),
			"ip":     c.IP(),
			"reason": reason,
		}
		if userID := logger.GetUserIDFromContext(c); userID != nil {
			logger.WarnWithUser(*userID, reason, details)
		} else {
			logger.Warn(reason, details)
		}
		return nil
	}
}
