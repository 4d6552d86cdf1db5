package apikey

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/amlguard/compliance-api/database"
	"github.com/amlguard/compliance-api/model"
	"github.com/amlguard/compliance-api/services"
	"github.com/amlguard/compliance-api/utils/auth"
	"github.com/amlguard/compliance-api/utils/middleware"
	"github.com/gofiber/fiber/v2"
)

type testEnv struct {
	app   *fiber.App
	store *database.MemoryStore
	token string
	user  *model.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := database.NewMemoryStore()
	user := store.CreateUser(&model.User{
		Email:     "analyst@example.com",
		Name:      "Analyst",
		Role:      "analyst",
		PartnerID: "partner-acme",
	})

	jwtManager := auth.NewJWTManager(auth.JWTConfig{
		Secret: "test-secret",
		Expiry: time.Hour,
		Issuer: "compliance-api-test",
	})
	token, err := jwtManager.GenerateAccessToken(user.ID, user.Email, user.Role)
	if err != nil {
		t.Fatalf("Failed to generate access token: %v", err)
	}

	apiKeyService := services.NewAPIKeyService(store)
	usageService := services.NewUsageService(store)
	auditService := services.NewAuditService(nil) // best-effort, no-op without a DB
	handler := NewAPIKeyHandler(apiKeyService, usageService, auditService)
	authMiddleware := middleware.NewAuthMiddleware(jwtManager, store)

	app := fiber.New()
	keys := app.Group("/api/v1/api-keys", authMiddleware.Required())
	keys.Post("/", handler.CreateAPIKey)
	keys.Get("/", handler.ListAPIKeys)
	keys.Get("/:id", handler.GetAPIKey)
	keys.Patch("/:id", handler.UpdateAPIKey)
	keys.Post("/:id/rotate", handler.RotateAPIKey)
	keys.Delete("/:id", handler.DeleteAPIKey)
	keys.Get("/:id/usage", handler.GetUsageStats)

	return &testEnv{app: app, store: store, token: token, user: user}
}

func (e *testEnv) request(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to encode request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+e.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.app.Test(req, -1)
	if err != nil {
		t.Fatalf("Request %s %s failed: %v", method, path, err)
	}
	return resp
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decode(t *testing.T, resp *http.Response) (envelope, string) {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}
	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("Failed to decode response %q: %v", raw, err)
		}
	}
	return env, string(raw)
}

type keyPayload struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Preview            string     `json:"preview"`
	Secret             string     `json:"secret"`
	IsActive           bool       `json:"is_active"`
	RateLimitPerMinute int        `json:"rate_limit_per_minute"`
	LastUsedAt         *time.Time `json:"last_used_at"`
	PartnerID          string     `json:"partner_id"`
}

func createKey(t *testing.T, env *testEnv, name string) keyPayload {
	t.Helper()
	resp := env.request(t, fiber.MethodPost, "/api/v1/api-keys/", fiber.Map{"name": name})
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("Create returned %d, want 201", resp.StatusCode)
	}
	body, _ := decode(t, resp)
	var key keyPayload
	if err := json.Unmarshal(body.Data, &key); err != nil {
		t.Fatalf("Failed to decode key payload: %v", err)
	}
	return key
}

func TestCreateAPIKey_DisclosesSecretOnce(t *testing.T) {
	env := newTestEnv(t)

	key := createKey(t, env, "prod")
	if !strings.HasPrefix(key.Secret, "ak_") {
		t.Errorf("Create response secret = %q, want ak_ prefix", key.Secret)
	}
	if key.RateLimitPerMinute != services.DefaultRateLimitPerMinute {
		t.Errorf("RateLimitPerMinute = %d, want default", key.RateLimitPerMinute)
	}

	// Every read-back path must omit the secret entirely
	for _, path := range []string{"/api/v1/api-keys/", "/api/v1/api-keys/" + key.ID} {
		resp := env.request(t, fiber.MethodGet, path, nil)
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("GET %s returned %d", path, resp.StatusCode)
		}
		_, raw := decode(t, resp)
		if strings.Contains(raw, key.Secret) {
			t.Errorf("GET %s leaks the plaintext secret", path)
		}
		if strings.Contains(raw, "\"secret\"") {
			t.Errorf("GET %s carries a secret field", path)
		}
		if !strings.Contains(raw, key.Preview) {
			t.Errorf("GET %s is missing the preview", path)
		}
	}
}

func TestCreateAPIKey_Validation(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, fiber.MethodPost, "/api/v1/api-keys/", fiber.Map{"name": ""})
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("Create(empty name) returned %d, want 400", resp.StatusCode)
	}

	resp = env.request(t, fiber.MethodPost, "/api/v1/api-keys/", fiber.Map{
		"name":       "prod",
		"expires_at": time.Now().Add(-time.Hour).Format(time.RFC3339),
	})
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("Create(past expiry) returned %d, want 400", resp.StatusCode)
	}
}

func TestAPIKeyRoutes_RequireAuth(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(fiber.MethodGet, "/api/v1/api-keys/", nil)
	resp, err := env.app.Test(req, -1)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("Unauthenticated list returned %d, want 401", resp.StatusCode)
	}

	req = httptest.NewRequest(fiber.MethodGet, "/api/v1/api-keys/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, err = env.app.Test(req, -1)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("Garbage token returned %d, want 401", resp.StatusCode)
	}
}

func TestUpdateAPIKey(t *testing.T) {
	env := newTestEnv(t)
	key := createKey(t, env, "prod")

	resp := env.request(t, fiber.MethodPatch, "/api/v1/api-keys/"+key.ID, fiber.Map{
		"name":                  "renamed",
		"is_active":             false,
		"rate_limit_per_minute": 500,
	})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Patch returned %d, want 200", resp.StatusCode)
	}
	body, _ := decode(t, resp)
	var updated keyPayload
	if err := json.Unmarshal(body.Data, &updated); err != nil {
		t.Fatalf("Failed to decode key payload: %v", err)
	}
	if updated.Name != "renamed" || updated.IsActive || updated.RateLimitPerMinute != 500 {
		t.Errorf("Patched key = %+v", updated)
	}

	resp = env.request(t, fiber.MethodPatch, "/api/v1/api-keys/"+key.ID, fiber.Map{
		"rate_limit_per_minute": 0,
	})
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("Patch(zero rate limit) returned %d, want 400", resp.StatusCode)
	}

	resp = env.request(t, fiber.MethodPatch, "/api/v1/api-keys/not-a-uuid", fiber.Map{"name": "x"})
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("Patch(bad id) returned %d, want 400", resp.StatusCode)
	}
}

func TestUpdateAPIKey_MixedPatchChangesNothing(t *testing.T) {
	env := newTestEnv(t)
	key := createKey(t, env, "prod")

	// Valid rename combined with an invalid rate limit: the whole patch
	// must be rejected with no field applied
	resp := env.request(t, fiber.MethodPatch, "/api/v1/api-keys/"+key.ID, fiber.Map{
		"name":                  "renamed",
		"rate_limit_per_minute": 0,
	})
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("Mixed patch returned %d, want 400", resp.StatusCode)
	}

	resp = env.request(t, fiber.MethodGet, "/api/v1/api-keys/"+key.ID, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("GET returned %d", resp.StatusCode)
	}
	body, _ := decode(t, resp)
	var got keyPayload
	if err := json.Unmarshal(body.Data, &got); err != nil {
		t.Fatalf("Failed to decode key payload: %v", err)
	}
	if got.Name != "prod" {
		t.Errorf("Name = %q after rejected patch, want prod", got.Name)
	}
	if got.RateLimitPerMinute != services.DefaultRateLimitPerMinute {
		t.Errorf("RateLimitPerMinute = %d after rejected patch, want default", got.RateLimitPerMinute)
	}
	if !got.IsActive {
		t.Error("IsActive changed by a rejected patch")
	}
}

func TestRotateAPIKey(t *testing.T) {
	env := newTestEnv(t)
	key := createKey(t, env, "prod")

	resp := env.request(t, fiber.MethodPost, "/api/v1/api-keys/"+key.ID+"/rotate", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Rotate returned %d, want 200", resp.StatusCode)
	}
	body, _ := decode(t, resp)
	var rotated keyPayload
	if err := json.Unmarshal(body.Data, &rotated); err != nil {
		t.Fatalf("Failed to decode key payload: %v", err)
	}
	if rotated.ID != key.ID {
		t.Error("Rotation changed the key id")
	}
	if rotated.Secret == "" || rotated.Secret == key.Secret {
		t.Error("Rotation must disclose a fresh secret exactly once")
	}
	if rotated.Preview == key.Preview {
		t.Error("Rotation did not change the preview")
	}
	if rotated.LastUsedAt != nil {
		t.Error("Rotation must reset last_used_at")
	}
}

func TestDeleteAPIKey(t *testing.T) {
	env := newTestEnv(t)
	key := createKey(t, env, "prod")

	resp := env.request(t, fiber.MethodDelete, "/api/v1/api-keys/"+key.ID, nil)
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("Delete returned %d, want 204", resp.StatusCode)
	}

	resp = env.request(t, fiber.MethodGet, "/api/v1/api-keys/"+key.ID, nil)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("GET after delete returned %d, want 404", resp.StatusCode)
	}

	resp = env.request(t, fiber.MethodDelete, "/api/v1/api-keys/"+key.ID, nil)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("Second delete returned %d, want 404", resp.StatusCode)
	}
}

func TestGetAPIKey_UnknownID(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, fiber.MethodGet, "/api/v1/api-keys/6a7b8c9d-0000-4000-8000-000000000000", nil)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("GET unknown id returned %d, want 404", resp.StatusCode)
	}
}

func TestGetUsageStats(t *testing.T) {
	env := newTestEnv(t)
	key := createKey(t, env, "prod")

	resp := env.request(t, fiber.MethodGet, fmt.Sprintf("/api/v1/api-keys/%s/usage", key.ID), nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Usage returned %d, want 200", resp.StatusCode)
	}
	body, _ := decode(t, resp)

	var payload struct {
		KeyID   string `json:"key_id"`
		Preview string `json:"preview"`
		Stats   struct {
			CallCount         int64   `json:"call_count"`
			AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
			SuccessRate       float64 `json:"success_rate"`
		} `json:"stats"`
	}
	if err := json.Unmarshal(body.Data, &payload); err != nil {
		t.Fatalf("Failed to decode usage payload: %v", err)
	}
	if payload.KeyID != key.ID {
		t.Errorf("key_id = %q, want %q", payload.KeyID, key.ID)
	}
	// A key with no traffic reports an empty, non-failing aggregate
	if payload.Stats.CallCount != 0 || payload.Stats.AvgResponseTimeMs != 0 || payload.Stats.SuccessRate != 100 {
		t.Errorf("Zero-traffic stats = %+v", payload.Stats)
	}
}
