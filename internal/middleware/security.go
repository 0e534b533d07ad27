package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/booktalk/backend/internal/apperr"
	"github.com/booktalk/backend/pkg/logger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

const rateLimitMessage = "too many requests, please try again later"

func CORS(origins []string) fiber.Handler {
	allowOrigins := strings.Join(origins, ",")
	if allowOrigins == "" {
		allowOrigins = "*"
	}
	return cors.New(cors.Config{
		AllowOrigins: allowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
	})
}

func SecurityHeaders() fiber.Handler {
	return helmet.New(helmet.Config{
		CrossOriginResourcePolicy: "cross-origin",
	})
}

// Limiter decides whether a client key may make another request.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// RateLimit enforces a shared quota per client IP.
func RateLimit(l Limiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !l.Allow(c.UserContext(), c.IP()) {
			logger.Warn("rate_limit_exceeded", map[string]interface{}{
				"ip":   c.IP(),
				"path": c.Path(),
			})
			return apperr.New(apperr.KindTooManyRequests, rateLimitMessage)
		}
		return c.Next()
	}
}

// MemoryRateLimit keeps the quota in process memory. It is used when no
// Redis instance is configured.
func MemoryRateLimit(max int, window time.Duration) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		LimitReached: func(c *fiber.Ctx) error {
			return apperr.New(apperr.KindTooManyRequests, rateLimitMessage)
		},
	})
}
