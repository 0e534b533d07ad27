package middleware

import (
	"strings"

	"github.com/booktalk/backend/internal/apperr"
	"github.com/booktalk/backend/internal/models"
	"github.com/booktalk/backend/pkg/logger"
	"github.com/booktalk/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const identityKey = "identity"

// Identity is the caller proven by a bearer token. Handlers load the user
// record themselves when they need more than this.
type Identity struct {
	UserID uuid.UUID
	Name   string
	Role   models.UserRole
}

func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == models.UserRoleAdmin
}

// RequireAuth rejects the request unless it carries a valid bearer token.
func RequireAuth(c *fiber.Ctx) error {
	identity, err := authenticate(c)
	if err != nil {
		logger.Warn("auth_rejected", map[string]interface{}{
			"ip":     c.IP(),
			"path":   c.Path(),
			"reason": err.Error(),
		})
		return err
	}

	setIdentity(c, identity)
	return c.Next()
}

// OptionalAuth attaches the identity when a valid token is present and
// otherwise lets the request through anonymously.
func OptionalAuth(c *fiber.Ctx) error {
	if identity, err := authenticate(c); err == nil {
		setIdentity(c, identity)
	}
	return c.Next()
}

func AdminOnly(c *fiber.Ctx) error {
	identity := GetIdentity(c)
	if identity == nil {
		return apperr.Unauthenticated("authentication invalid")
	}
	if !identity.IsAdmin() {
		return apperr.Forbidden("admin access required")
	}
	return c.Next()
}

func GetIdentity(c *fiber.Ctx) *Identity {
	identity, ok := c.Locals(identityKey).(*Identity)
	if !ok {
		return nil
	}
	return identity
}

func authenticate(c *fiber.Ctx) (*Identity, error) {
	// fasthttp trims trailing whitespace, so "Bearer   " arrives as "Bearer".
	header := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if header != "Bearer" && !strings.HasPrefix(header, "Bearer ") {
		return nil, apperr.Unauthenticated("authentication token missing or invalid")
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer"))
	if token == "" {
		return nil, apperr.Unauthenticated("authentication token missing")
	}

	claims, err := utils.ValidateToken(token)
	if err != nil {
		return nil, apperr.Unauthenticated("authentication invalid")
	}

	if claims.UserID == uuid.Nil {
		return nil, apperr.Unauthenticated("invalid token")
	}

	return &Identity{UserID: claims.UserID, Name: claims.Name, Role: claims.Role}, nil
}

func setIdentity(c *fiber.Ctx, identity *Identity) {
	c.Locals(identityKey, identity)
	c.Locals(logger.UserIDKey, identity.UserID.String())
}
