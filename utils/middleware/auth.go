package middleware

import (
	"strings"

	"github.com/amlguard/compliance-api/database"
	"github.com/amlguard/compliance-api/model"
	"github.com/amlguard/compliance-api/utils/auth"
	"github.com/amlguard/compliance-api/utils/response"
	"github.com/gofiber/fiber/v2"
)

// AuthMiddleware handles JWT authentication for the dashboard routes
type AuthMiddleware struct {
	jwtManager *auth.JWTManager
	profiles   database.ProfileStore
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(jwtManager *auth.JWTManager, profiles database.ProfileStore) *AuthMiddleware {
	return &AuthMiddleware{
		jwtManager: jwtManager,
		profiles:   profiles,
	}
}

// Required is middleware that requires a valid JWT access token
func (m *AuthMiddleware) Required() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Get token from Authorization header
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return response.Unauthorized(c, "Missing authorization token")
		}

		// Extract token from "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return response.Unauthorized(c, "Invalid authorization format")
		}

		claims, err := m.jwtManager.ValidateToken(parts[1])
		if err != nil {
			if err == auth.ErrExpiredToken {
				return response.Unauthorized(c, "Token has expired")
			}
			return response.Unauthorized(c, "Invalid token")
		}

		if claims.TokenType != "access" {
			return response.Unauthorized(c, "Invalid token type")
		}

		// Load the owning user so handlers get the live profile
		user, err := m.profiles.GetUser(c.Context(), claims.UserID)
		if err != nil {
			return response.Unauthorized(c, "User not found")
		}

		c.Locals("user", user)
		return c.Next()
	}
}

// AdminOnly requires the authenticated user to have the admin role
func (m *AuthMiddleware) AdminOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := GetUser(c)
		if !ok || user.Role != "admin" {
			return response.Forbidden(c, "Admin access required")
		}
		return c.Next()
	}
}

// GetUser retrieves the authenticated user from context
func GetUser(c *fiber.Ctx) (*model.User, bool) {
	user, ok := c.Locals("user").(*model.User)
	return user, ok
}
