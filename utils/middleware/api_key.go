package middleware

import (
	"strings"
	"time"

	"github.com/amlguard/compliance-api/model"
	"github.com/amlguard/compliance-api/services"
	"github.com/amlguard/compliance-api/utils/cache"
	"github.com/amlguard/compliance-api/utils/response"
	"github.com/gofiber/fiber/v2"
)

// APIKeyMiddleware authenticates partner API calls with an issued key,
// enforces the key's per-minute rate limit and records one usage event per
// call
type APIKeyMiddleware struct {
	apiKeyService *services.APIKeyService
	usageService  *services.UsageService
	cache         *cache.RedisCache
}

// NewAPIKeyMiddleware creates a new API key middleware
func NewAPIKeyMiddleware(apiKeyService *services.APIKeyService, usageService *services.UsageService, cache *cache.RedisCache) *APIKeyMiddleware {
	return &APIKeyMiddleware{
		apiKeyService: apiKeyService,
		usageService:  usageService,
		cache:         cache,
	}
}

// Authenticate validates the presented secret, applies the rate limit and
// records usage after the handler completes. Usage recording never fails
// the request it observes.
func (m *APIKeyMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Format: "Authorization: Bearer ak_..." or "X-API-Key: ak_..."
		secret := c.Get("Authorization")
		if secret == "" {
			secret = c.Get("X-API-Key")
		}
		secret = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(secret), "Bearer "))
		if secret == "" {
			return response.Unauthorized(c, "API key required")
		}

		key, err := m.apiKeyService.Authorize(c.Context(), secret)
		if err != nil {
			// Wrong secret, inactive key and expired key are deliberately
			// indistinguishable here
			return response.Unauthorized(c, "Invalid API key")
		}

		if !m.allowRequest(c, key) {
			return response.TooManyRequests(c, "Rate limit exceeded. Try again in 1 minute.")
		}

		c.Locals("api_key", key)

		start := time.Now()
		handlerErr := c.Next()

		status := c.Response().StatusCode()
		if handlerErr != nil {
			if fe, ok := handlerErr.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		m.usageService.Record(c.Context(), key.ID, c.Path(),
			int(time.Since(start).Milliseconds()), status, c.IP())

		return handlerErr
	}
}

// allowRequest applies a fixed one-minute window per key in Redis.
// Fails open: a missing or unreachable Redis never blocks partner traffic.
func (m *APIKeyMiddleware) allowRequest(c *fiber.Ctx, key *model.APIKey) bool {
	if m.cache == nil {
		return true
	}

	rateLimitKey := "api_key:ratelimit:" + key.ID.String()

	count, err := m.cache.Increment(c.Context(), rateLimitKey)
	if err != nil {
		return true
	}
	if count == 1 {
		_ = m.cache.Expire(c.Context(), rateLimitKey, time.Minute)
	}

	return count <= int64(key.RateLimitPerMinute)
}

// GetAPIKey retrieves the authenticated API key from context
func GetAPIKey(c *fiber.Ctx) (*model.APIKey, bool) {
	key, ok := c.Locals("api_key").(*model.APIKey)
	return key, ok
}
