package partner

import (
	"time"

	"github.com/amlguard/compliance-api/utils/middleware"
	"github.com/amlguard/compliance-api/utils/response"
	"github.com/gofiber/fiber/v2"
)

// Ping handles GET /partner/v1/ping. A minimal authenticated endpoint for
// partners to verify their credential; every call through it is rate
// limited and usage accounted like any other partner API call.
func Ping(c *fiber.Ctx) error {
	key, ok := middleware.GetAPIKey(c)
	if !ok || key == nil {
		return response.Unauthorized(c, "API key required")
	}

	return response.Success(c, fiber.Map{
		"key_id":     key.ID,
		"partner_id": key.PartnerID,
		"time":       time.Now().UTC(),
	})
}
