package handlers

import (
	"github.com/amlguard/compliance-api/database"
	"github.com/amlguard/compliance-api/utils/response"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// HealthCheck reports liveness and database reachability
func HealthCheck(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		status := "ok"
		if db != nil {
			if err := database.HealthCheck(db); err != nil {
				status = "degraded"
			}
		}
		return response.Success(c, fiber.Map{"status": status})
	}
}
