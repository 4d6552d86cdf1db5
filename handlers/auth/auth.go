package auth

import (
	"errors"
	"time"

	"github.com/amlguard/compliance-api/model"
	"github.com/amlguard/compliance-api/utils/auth"
	"github.com/amlguard/compliance-api/utils/middleware"
	"github.com/amlguard/compliance-api/utils/response"
	"github.com/amlguard/compliance-api/utils/validation"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuthHandler handles registration and login for compliance staff
type AuthHandler struct {
	db         *gorm.DB
	jwtManager *auth.JWTManager
	validator  *validation.Validator
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(db *gorm.DB, jwtManager *auth.JWTManager) *AuthHandler {
	return &AuthHandler{
		db:         db,
		jwtManager: jwtManager,
		validator:  validation.NewValidator(),
	}
}

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"required,min=2,max=100"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// TokenResponse represents a successful login response
type TokenResponse struct {
	User         *model.User `json:"user"`
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int         `json:"expires_in"` // in seconds
}

// Register handles POST /api/v1/auth/register. The partner id assigned here
// is immutable and scopes all of the account's API key usage.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.Error(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_FAILED")
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	user := &model.User{
		Email:        req.Email,
		PasswordHash: passwordHash,
		Name:         req.Name,
		Role:         "analyst",
		PartnerID:    uuid.New().String(),
	}

	if err := h.db.WithContext(c.Context()).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return response.Conflict(c, "Email is already registered")
		}
		return response.InternalServerError(c, "Failed to create account")
	}

	return response.CreatedWithMessage(c, "Account created successfully", user)
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return response.BadRequest(c, "Email and password are required")
	}

	var user model.User
	if err := h.db.WithContext(c.Context()).
		Where("email = ?", req.Email).
		First(&user).Error; err != nil {
		return response.Unauthorized(c, "Invalid email or password")
	}

	if err := auth.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		return response.Unauthorized(c, "Invalid email or password")
	}

	accessToken, err := h.jwtManager.GenerateAccessToken(user.ID, user.Email, user.Role)
	if err != nil {
		return response.InternalServerError(c, "Failed to generate access token")
	}

	refreshToken, err := h.jwtManager.GenerateRefreshToken(user.ID, user.Email, user.Role)
	if err != nil {
		return response.InternalServerError(c, "Failed to generate refresh token")
	}

	return response.Success(c, TokenResponse{
		User:         &user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int((24 * time.Hour).Seconds()),
	})
}

// Profile handles GET /api/v1/auth/profile
func (h *AuthHandler) Profile(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}
	return response.Success(c, user)
}
