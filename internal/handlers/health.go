package handlers

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/catalog/internal/database"
)

// Health reports whether the database answers.
func Health(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := database.Ping(db); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	}
}
