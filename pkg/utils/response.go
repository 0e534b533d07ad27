package utils

import "github.com/gofiber/fiber/v2"

func Success(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

// Message answers with a confirmation text and optional data.
func Message(c *fiber.Ctx, status int, message string, data interface{}) error {
	body := fiber.Map{
		"success": true,
		"message": message,
	}
	if data != nil {
		body["data"] = data
	}
	return c.Status(status).JSON(body)
}

func Paginated(c *fiber.Ctx, data interface{}, p PaginationParams, total int64) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"data":    data,
		"pagination": fiber.Map{
			"page":       p.Page,
			"limit":      p.Limit,
			"total":      total,
			"totalPages": p.TotalPages(total),
		},
	})
}
