package handlers

import (
	"strings"
	"time"

	"github.com/booktalk/backend/internal/apperr"
	"github.com/booktalk/backend/internal/middleware"
	"github.com/booktalk/backend/internal/validation"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// parseUUID reports a malformed reference as an invalid value of field.
func parseUUID(field, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil, apperr.InvalidID(field, value)
	}
	return id, nil
}

// parseDate parses a validated ISO date field.
func parseDate(field, value string) (time.Time, error) {
	parsed, err := validation.ParseISODate(value)
	if err != nil {
		return time.Time{}, apperr.Validation(apperr.FieldError{
			Field:   field,
			Message: field + " must be a valid date (YYYY-MM-DD)",
		})
	}
	return parsed.UTC(), nil
}

// bindJSON decodes the request body into req and validates it.
func bindJSON(c *fiber.Ctx, req interface{}) error {
	if len(c.Body()) > 0 {
		if err := c.BodyParser(req); err != nil {
			return apperr.BadRequest("invalid request body")
		}
	}
	return validation.Struct(req)
}

func bindQuery(c *fiber.Ctx, req interface{}) error {
	if err := c.QueryParser(req); err != nil {
		return apperr.BadRequest("invalid query parameters")
	}
	return validation.Struct(req)
}

// currentIdentity is only called behind RequireAuth.
func currentIdentity(c *fiber.Ctx) (*middleware.Identity, error) {
	identity := middleware.GetIdentity(c)
	if identity == nil {
		return nil, apperr.Unauthenticated("authentication invalid")
	}
	return identity, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds a LIKE pattern matching value literally anywhere.
func containsPattern(value string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(value)) + "%"
}

const titleSearchClause = `LOWER(title) LIKE ? ESCAPE '\'`
