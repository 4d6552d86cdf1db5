package router

import (
	"log"
	"os"
	"time"

	"github.com/amlguard/compliance-api/database"
	"github.com/amlguard/compliance-api/handlers"
	analytics_handlers "github.com/amlguard/compliance-api/handlers/analytics"
	apikey_handlers "github.com/amlguard/compliance-api/handlers/apikey"
	auth_handlers "github.com/amlguard/compliance-api/handlers/auth"
	partner_handlers "github.com/amlguard/compliance-api/handlers/partner"
	"github.com/amlguard/compliance-api/services"
	"github.com/amlguard/compliance-api/utils/auth"
	"github.com/amlguard/compliance-api/utils/cache"
	"github.com/amlguard/compliance-api/utils/middleware"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func SetupRoutes(app *fiber.App, db *gorm.DB, store database.Store) {
	// Get JWT secret from environment
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable is not set")
	}

	jwtIssuer := os.Getenv("JWT_ISSUER")
	if jwtIssuer == "" {
		jwtIssuer = "amlguard-compliance-api"
	}

	jwtManager := auth.NewJWTManager(auth.JWTConfig{
		Secret:        jwtSecret,
		Expiry:        24 * time.Hour,
		RefreshExpiry: 7 * 24 * time.Hour,
		Issuer:        jwtIssuer,
	})

	// Redis backs the per-key rate limiter; the partner API stays up
	// (unlimited) when Redis is unavailable
	var redisCache *cache.RedisCache
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		var err error
		redisCache, err = cache.NewRedisCache(redisURL)
		if err != nil {
			log.Printf("Warning: Failed to connect to Redis: %v. Rate limiting will be disabled.", err)
		}
	}

	// Services
	apiKeyService := services.NewAPIKeyService(store)
	usageService := services.NewUsageService(store)
	auditService := services.NewAuditService(db)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(jwtManager, store)
	apiKeyMiddleware := middleware.NewAPIKeyMiddleware(apiKeyService, usageService, redisCache)

	// Handlers
	authHandler := auth_handlers.NewAuthHandler(db, jwtManager)
	apiKeyHandler := apikey_handlers.NewAPIKeyHandler(apiKeyService, usageService, auditService)
	analyticsHandler := analytics_handlers.NewAnalyticsHandler(apiKeyService, usageService)

	// Health
	app.Get("/health", handlers.HealthCheck(db))

	// Dashboard API (JWT sessions)
	v1 := app.Group("/api/v1")

	authRoutes := v1.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Get("/profile", authMiddleware.Required(), authHandler.Profile)

	apiKeys := v1.Group("/api-keys", authMiddleware.Required())
	apiKeys.Post("/", apiKeyHandler.CreateAPIKey)
	apiKeys.Get("/", apiKeyHandler.ListAPIKeys)
	apiKeys.Get("/:id", apiKeyHandler.GetAPIKey)
	apiKeys.Patch("/:id", apiKeyHandler.UpdateAPIKey)
	apiKeys.Post("/:id/rotate", apiKeyHandler.RotateAPIKey)
	apiKeys.Delete("/:id", apiKeyHandler.DeleteAPIKey)
	apiKeys.Get("/:id/usage", apiKeyHandler.GetUsageStats)

	v1.Get("/analytics/usage", authMiddleware.Required(), analyticsHandler.GetUsage)

	// Partner API (issued keys)
	partnerV1 := app.Group("/partner/v1", apiKeyMiddleware.Authenticate())
	partnerV1.Get("/ping", partner_handlers.Ping)
}
