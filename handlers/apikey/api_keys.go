package apikey

import (
	"time"

	"github.com/amlguard/compliance-api/model"
	"github.com/amlguard/compliance-api/services"
	"github.com/amlguard/compliance-api/utils/middleware"
	"github.com/amlguard/compliance-api/utils/response"
	"github.com/amlguard/compliance-api/utils/validation"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// APIKeyHandler handles API key management requests for the dashboard
type APIKeyHandler struct {
	apiKeyService *services.APIKeyService
	usageService  *services.UsageService
	auditService  *services.AuditService
	validator     *validation.Validator
}

// NewAPIKeyHandler creates a new API key handler
func NewAPIKeyHandler(apiKeyService *services.APIKeyService, usageService *services.UsageService, auditService *services.AuditService) *APIKeyHandler {
	return &APIKeyHandler{
		apiKeyService: apiKeyService,
		usageService:  usageService,
		auditService:  auditService,
		validator:     validation.NewValidator(),
	}
}

func parseKeyID(c *fiber.Ctx) (uuid.UUID, error) {
	return uuid.Parse(c.Params("id"))
}

// CreateAPIKey handles POST /api/v1/api-keys
func (h *APIKeyHandler) CreateAPIKey(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req struct {
		Name               string     `json:"name" validate:"required,min=1,max=100"`
		RateLimitPerMinute int        `json:"rate_limit_per_minute" validate:"gte=0"` // Optional, defaults to 100
		ExpiresAt          *time.Time `json:"expires_at"`                             // Optional
	}
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.Error(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_FAILED")
	}

	key, err := h.apiKeyService.CreateKey(c.Context(), user.ID, req.Name, req.RateLimitPerMinute, req.ExpiresAt)
	if err != nil {
		return response.FromError(c, err, "Failed to create API key")
	}

	h.auditService.Record(c.Context(), user.ID, model.AuditActionKeyCreated, key.ID, map[string]interface{}{
		"name":       key.Name,
		"preview":    key.Preview,
		"rate_limit": key.RateLimitPerMinute,
	}, c.IP())

	// The secret in this body is shown exactly once and cannot be retrieved
	// again
	return response.CreatedWithMessage(c,
		"API key created. Save the secret securely - it will not be shown again.",
		key)
}

// ListAPIKeys handles GET /api/v1/api-keys
func (h *APIKeyHandler) ListAPIKeys(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	keys, err := h.apiKeyService.ListKeys(c.Context(), user.ID)
	if err != nil {
		return response.FromError(c, err, "Failed to list API keys")
	}

	return response.Success(c, keys)
}

// GetAPIKey handles GET /api/v1/api-keys/:id
func (h *APIKeyHandler) GetAPIKey(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	keyID, err := parseKeyID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid API key ID")
	}

	key, err := h.apiKeyService.GetKey(c.Context(), keyID, user.ID)
	if err != nil {
		return response.FromError(c, err, "Failed to get API key")
	}

	return response.Success(c, key)
}

// UpdateAPIKey handles PATCH /api/v1/api-keys/:id
func (h *APIKeyHandler) UpdateAPIKey(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	keyID, err := parseKeyID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid API key ID")
	}

	var req struct {
		Name               *string `json:"name"`
		IsActive           *bool   `json:"is_active"`
		RateLimitPerMinute *int    `json:"rate_limit_per_minute"`
	}
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	// One store write for the whole patch: a request mixing a valid field
	// with an invalid one changes nothing
	patch := services.KeyPatch{
		Name:               req.Name,
		IsActive:           req.IsActive,
		RateLimitPerMinute: req.RateLimitPerMinute,
	}
	if err := h.apiKeyService.UpdateKey(c.Context(), keyID, user.ID, patch); err != nil {
		return response.FromError(c, err, "Failed to update API key")
	}

	if req.Name != nil {
		h.auditService.Record(c.Context(), user.ID, model.AuditActionKeyRenamed, keyID,
			map[string]interface{}{"name": *req.Name}, c.IP())
	}
	if req.IsActive != nil {
		action := model.AuditActionKeyDeactivated
		if *req.IsActive {
			action = model.AuditActionKeyActivated
		}
		h.auditService.Record(c.Context(), user.ID, action, keyID, nil, c.IP())
	}
	if req.RateLimitPerMinute != nil {
		h.auditService.Record(c.Context(), user.ID, model.AuditActionRateLimitSet, keyID,
			map[string]interface{}{"rate_limit": *req.RateLimitPerMinute}, c.IP())
	}

	key, err := h.apiKeyService.GetKey(c.Context(), keyID, user.ID)
	if err != nil {
		return response.FromError(c, err, "Failed to get API key")
	}

	return response.Success(c, key)
}

// RotateAPIKey handles POST /api/v1/api-keys/:id/rotate
func (h *APIKeyHandler) RotateAPIKey(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	keyID, err := parseKeyID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid API key ID")
	}

	key, err := h.apiKeyService.RotateKey(c.Context(), keyID, user.ID)
	if err != nil {
		return response.FromError(c, err, "Failed to rotate API key")
	}

	h.auditService.Record(c.Context(), user.ID, model.AuditActionKeyRotated, key.ID,
		map[string]interface{}{"preview": key.Preview}, c.IP())

	return response.SuccessWithMessage(c,
		"API key rotated. The previous secret is no longer valid.",
		key)
}

// DeleteAPIKey handles DELETE /api/v1/api-keys/:id
func (h *APIKeyHandler) DeleteAPIKey(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	keyID, err := parseKeyID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid API key ID")
	}

	if err := h.apiKeyService.DeleteKey(c.Context(), keyID, user.ID); err != nil {
		return response.FromError(c, err, "Failed to delete API key")
	}

	h.auditService.Record(c.Context(), user.ID, model.AuditActionKeyDeleted, keyID, nil, c.IP())

	return response.NoContent(c)
}

// GetUsageStats handles GET /api/v1/api-keys/:id/usage
func (h *APIKeyHandler) GetUsageStats(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	keyID, err := parseKeyID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid API key ID")
	}

	// Ownership check before touching usage data
	key, err := h.apiKeyService.GetKey(c.Context(), keyID, user.ID)
	if err != nil {
		return response.FromError(c, err, "Failed to get API key")
	}

	stats, err := h.usageService.MonthlyStats(c.Context(),
		[]uuid.UUID{key.ID}, services.StartOfMonth(time.Now()))
	if err != nil {
		return response.FromError(c, err, "Failed to compute usage stats")
	}

	return response.Success(c, fiber.Map{
		"key_id":       key.ID,
		"preview":      key.Preview,
		"last_used_at": key.LastUsedAt,
		"stats":        stats,
	})
}
