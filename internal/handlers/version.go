package handlers

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/booktalk/backend/pkg/logger"
	"github.com/booktalk/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Version is set at link time with
// -ldflags "-X github.com/booktalk/backend/internal/handlers.Version=1.2.3".
var Version = "dev"

const (
	apiPrefix     = "/api/v1"
	apiVersion    = "v1"
	healthTimeout = 2 * time.Second
)

type buildInfo struct {
	Version    string `json:"version"`
	APIVersion string `json:"apiVersion"`
	GoVersion  string `json:"goVersion,omitempty"`
	Revision   string `json:"revision,omitempty"`
}

var readBuildInfo = sync.OnceValue(func() buildInfo {
	info := buildInfo{Version: Version, APIVersion: apiVersion}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info.GoVersion = bi.GoVersion
	for _, setting := range bi.Settings {
		if setting.Key == "vcs.revision" {
			info.Revision = setting.Value
		}
	}
	return info
})

type SystemHandler struct {
	DB *gorm.DB
}

func NewSystemHandler(db *gorm.DB) *SystemHandler {
	return &SystemHandler{DB: db}
}

func (h *SystemHandler) Version(c *fiber.Ctx) error {
	return utils.Success(c, fiber.StatusOK, readBuildInfo())
}

// Health reports whether the database answers a ping. It stays outside
// the envelope so load balancers can read it directly.
func (h *SystemHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
	defer cancel()

	if err := h.ping(ctx); err != nil {
		logger.Error("health_check_failed", err, nil)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status":   "degraded",
			"database": "down",
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":   "ok",
		"database": "up",
	})
}

func (h *SystemHandler) ping(ctx context.Context) error {
	sqlDB, err := h.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
