package utils

import (
	"strconv"
	"strings"

	"github.com/booktalk/backend/internal/apperr"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

type PaginationParams struct {
	Page   int
	Limit  int
	Offset int
}

// ParsePagination reads ?page= and ?limit=. Missing values fall back to the
// first page of DefaultPageLimit items, limits above MaxPageLimit are capped,
// and anything that is not a positive integer is rejected.
func ParsePagination(c *fiber.Ctx) (PaginationParams, error) {
	var fields []apperr.FieldError

	page, ok := positiveInt(c.Query("page"), 1)
	if !ok {
		fields = append(fields, apperr.FieldError{Field: "page", Message: "page must be a positive integer"})
	}
	limit, ok := positiveInt(c.Query("limit"), DefaultPageLimit)
	if !ok {
		fields = append(fields, apperr.FieldError{Field: "limit", Message: "limit must be a positive integer"})
	}
	if len(fields) > 0 {
		return PaginationParams{}, apperr.Validation(fields...)
	}

	limit = min(limit, MaxPageLimit)
	return PaginationParams{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}, nil
}

// TotalPages is the number of pages needed to show total rows.
func (p PaginationParams) TotalPages(total int64) int {
	if p.Limit < 1 {
		return 0
	}
	return int((total + int64(p.Limit) - 1) / int64(p.Limit))
}

func ApplyPagination(db *gorm.DB, p PaginationParams) *gorm.DB {
	return db.Offset(p.Offset).Limit(p.Limit)
}

func positiveInt(value string, fallback int) (int, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, true
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 1 {
		return 0, false
	}
	return parsed, true
}
