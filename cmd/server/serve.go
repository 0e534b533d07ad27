package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/booktalk/backend/internal/config"
	"github.com/booktalk/backend/internal/database"
	"github.com/booktalk/backend/internal/handlers"
	"github.com/booktalk/backend/internal/middleware"
	"github.com/booktalk/backend/internal/ratelimit"
	"github.com/booktalk/backend/internal/services"
	"github.com/booktalk/backend/internal/storage"
	"github.com/booktalk/backend/pkg/logger"
	"github.com/booktalk/backend/pkg/utils"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

const shutdownTimeout = 10 * time.Second

func runServe() error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)

	db, err := database.Connect(cfg)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}

	storageClient, err := storage.NewMinIOClient(cfg.Storage)
	if err != nil {
		return fmt.Errorf("minio initialization failed: %w", err)
	}
	if err := storageClient.EnsureBucket(context.Background()); err != nil {
		return fmt.Errorf("failed ensuring minio bucket: %w", err)
	}

	sender := services.NewSender(cfg)
	notifier := services.NewNotifier(sender, cfg.Mail.QueueSize, cfg.Mail.Timeout)

	rateLimiter, closeLimiter := buildRateLimiter(cfg.RateLimit)
	defer closeLimiter()

	app := fiber.New(fiber.Config{
		AppName:      "booktalk",
		BodyLimit:    cfg.Server.BodyLimitMB * 1024 * 1024,
		ErrorHandler: middleware.ErrorHandler,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})
	app.Use(middleware.RequestLogger())
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.SecurityLogger())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	app.Use(rateLimiter)

	handlers.RegisterRoutes(app, handlers.Dependencies{
		DB:       db,
		Photos:   services.NewPhotoService(storageClient),
		Sender:   sender,
		Notifier: notifier,
		Reset:    cfg.Reset,
	})

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":         cfg.Server.Port,
		"address":      listenAddr,
		"body_limit":   fmt.Sprintf("%dMB", cfg.Server.BodyLimitMB),
		"mail_enabled": cfg.MailEnabled(),
		"version":      handlers.Version,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("server_shutting_down", map[string]interface{}{
			"signal": sig.String(),
		})
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Error("server_shutdown_failed", err, nil)
		}
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server stopped: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := notifier.Close(ctx); err != nil {
		logger.Warn("notifier_drain_incomplete", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	logger.Info("server_stopped", nil)
	return nil
}

// buildRateLimiter prefers a Redis-backed quota shared between instances
// and falls back to an in-process one.
func buildRateLimiter(cfg config.RateLimitConfig) (fiber.Handler, func()) {
	if cfg.RedisAddr == "" {
		return middleware.MemoryRateLimit(cfg.Max, cfg.Window), func() {}
	}

	limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisPrefix, cfg.Max, cfg.Window)
	if err != nil {
		logger.Warn("redis_rate_limiter_unavailable", map[string]interface{}{
			"addr":  cfg.RedisAddr,
			"error": err.Error(),
		})
		return middleware.MemoryRateLimit(cfg.Max, cfg.Window), func() {}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := limiter.Ping(ctx); err != nil {
		logger.Warn("redis_rate_limiter_unreachable", map[string]interface{}{
			"addr":  cfg.RedisAddr,
			"error": err.Error(),
		})
		_ = limiter.Close()
		return middleware.MemoryRateLimit(cfg.Max, cfg.Window), func() {}
	}

	logger.Info("redis_rate_limiter_enabled", map[string]interface{}{
		"addr":   cfg.RedisAddr,
		"max":    cfg.Max,
		"window": cfg.Window.String(),
	})
	return middleware.RateLimit(limiter), func() { _ = limiter.Close() }
}
