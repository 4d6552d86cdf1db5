package analytics

import (
	"time"

	"github.com/amlguard/compliance-api/services"
	"github.com/amlguard/compliance-api/utils/middleware"
	"github.com/amlguard/compliance-api/utils/response"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// AnalyticsHandler serves the dashboard usage cards
type AnalyticsHandler struct {
	apiKeyService *services.APIKeyService
	usageService  *services.UsageService
}

// NewAnalyticsHandler creates a new analytics handler
func NewAnalyticsHandler(apiKeyService *services.APIKeyService, usageService *services.UsageService) *AnalyticsHandler {
	return &AnalyticsHandler{
		apiKeyService: apiKeyService,
		usageService:  usageService,
	}
}

// GetUsage handles GET /api/v1/analytics/usage. Aggregates the monthly
// stats across all of the owner's keys; an optional period_start query
// param (RFC3339) overrides the default start of the current month.
func (h *AnalyticsHandler) GetUsage(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	periodStart := services.StartOfMonth(time.Now())
	if raw := c.Query("period_start"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return response.BadRequest(c, "period_start must be RFC3339")
		}
		periodStart = parsed
	}

	keys, err := h.apiKeyService.ListKeys(c.Context(), user.ID)
	if err != nil {
		return response.FromError(c, err, "Failed to list API keys")
	}

	keyIDs := make([]uuid.UUID, 0, len(keys))
	for i := range keys {
		keyIDs = append(keyIDs, keys[i].ID)
	}

	stats, err := h.usageService.MonthlyStats(c.Context(), keyIDs, periodStart)
	if err != nil {
		return response.FromError(c, err, "Failed to compute usage stats")
	}

	return response.Success(c, fiber.Map{
		"partner_id":   user.PartnerID,
		"period_start": periodStart,
		"key_count":    len(keys),
		"stats":        stats,
	})
}
