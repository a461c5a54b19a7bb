/**
 * @description
 * Provider API Handlers.
 * Per-user LLM credential management plus provider model listing and
 * connection testing.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/services
 * - backend/internal/api/middleware
 */

package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/mantis-project/backend/internal/api/middleware"
	"github.com/mantis-project/backend/internal/logger"
	"github.com/mantis-project/backend/internal/services"
)

// ProviderHandler handles provider-config requests
type ProviderHandler struct {
	providers *services.ProviderService
}

// NewProviderHandler creates a new ProviderHandler
func NewProviderHandler(providers *services.ProviderService) *ProviderHandler {
	return &ProviderHandler{providers: providers}
}

// SaveConfigRequest is the payload for saving provider credentials
type SaveConfigRequest struct {
	ProviderName string `json:"provider_name"`
	APIKey       string `json:"api_key"`
	ModelName    string `json:"model_name"`
}

// TestConnectionRequest is the payload for probing provider credentials
type TestConnectionRequest struct {
	ProviderName string `json:"provider_name"`
	APIKey       string `json:"api_key"`
	ModelName    string `json:"model_name"`
}

// ListAvailable returns the supported provider names
// GET /api/v1/providers/available
func (h *ProviderHandler) ListAvailable(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(h.providers.ListAvailable())
}

// GetConfig returns the user's saved provider config (null when none)
// GET /api/v1/providers/config
func (h *ProviderHandler) GetConfig(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	cfg, err := h.providers.GetConfig(c.Context(), userID)
	if err != nil {
		logger.Error("ProviderHandler: failed to get config: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch provider config"})
	}

	return c.Status(fiber.StatusOK).JSON(cfg)
}

// SaveConfig replaces the user's provider config
// POST /api/v1/providers/config
func (h *ProviderHandler) SaveConfig(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var req SaveConfigRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	cfg, err := h.providers.SaveConfig(c.Context(), userID, req.ProviderName, req.APIKey, req.ModelName)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(fiber.StatusOK).JSON(cfg)
}

// ListModels proxies the provider's model listing for the given key
// GET /api/v1/providers/:provider/models?api_key=...
func (h *ProviderHandler) ListModels(c *fiber.Ctx) error {
	if _, err := middleware.GetUserID(c); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	providerName := c.Params("provider")
	apiKey := c.Query("api_key")
	if apiKey == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "api_key is required"})
	}

	models, err := h.providers.ListModels(c.Context(), providerName, apiKey)
	if err != nil {
		logger.Error("ProviderHandler: model listing failed for %s: %v", providerName, err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(fiber.StatusOK).JSON(models)
}

// TestConnection probes the provider with the supplied credentials
// POST /api/v1/providers/test
func (h *ProviderHandler) TestConnection(c *fiber.Ctx) error {
	if _, err := middleware.GetUserID(c); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var req TestConnectionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := h.providers.TestConnection(c.Context(), req.ProviderName, req.APIKey, req.ModelName); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":  "ok",
		"message": "Connection successful",
	})
}
