/**
 * @description
 * Product API Handlers.
 * Tracking, listing, deleting, refreshing, and the live price-update stream.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/services
 * - backend/internal/api/middleware
 */

package handlers

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/mantis-project/backend/internal/api/middleware"
	"github.com/mantis-project/backend/internal/logger"
	"github.com/mantis-project/backend/internal/services"
	"github.com/valyala/fasthttp"
)

// refreshAllTimeout bounds a fire-and-forget full refresh
const refreshAllTimeout = 30 * time.Minute

// ProductHandler handles tracked-product requests
type ProductHandler struct {
	tracker *services.TrackerService
	refresh *services.RefreshService
	hub     *services.PriceStreamHub
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler(tracker *services.TrackerService, refresh *services.RefreshService, hub *services.PriceStreamHub) *ProductHandler {
	return &ProductHandler{
		tracker: tracker,
		refresh: refresh,
		hub:     hub,
	}
}

// TrackRequest is the payload for tracking a URL
type TrackRequest struct {
	URL string `json:"url"`
}

// Track fetches, extracts, and persists a fresh observation for a URL
// POST /api/v1/products/track
func (h *ProductHandler) Track(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var req TrackRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	tracked, err := h.tracker.Track(c.Context(), userID, req.URL)
	if err != nil {
		return trackErrorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(tracked)
}

// List returns the latest tracked state for all of the user's products
// GET /api/v1/products
func (h *ProductHandler) List(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	tracked, err := h.tracker.ListForUser(c.Context(), userID)
	if err != nil {
		logger.Error("ProductHandler: failed to list products: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch products"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"products": tracked,
		"count":    len(tracked),
	})
}

// Get returns the derived snapshot for one product
// GET /api/v1/products/:id
func (h *ProductHandler) Get(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	productID, err := parseProductID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid product id"})
	}

	tracked, err := h.tracker.Get(c.Context(), userID, productID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Product not found"})
		}
		logger.Error("ProductHandler: failed to get product %d: %v", productID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch product"})
	}

	return c.Status(fiber.StatusOK).JSON(tracked)
}

// Delete permanently removes a tracked product and its price history.
// Ownership mismatch is reported exactly like a missing product.
// DELETE /api/v1/products/:id
func (h *ProductHandler) Delete(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	productID, err := parseProductID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid product id"})
	}

	if err := h.tracker.Delete(c.Context(), userID, productID); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Product not found"})
		}
		logger.Error("ProductHandler: failed to delete product %d: %v", productID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to delete product"})
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// RefreshAll triggers a background refresh of every tracked product.
// Returns immediately; per-product failures are logged, not surfaced.
// POST /api/v1/products/refresh
func (h *ProductHandler) RefreshAll(c *fiber.Ctx) error {
	if _, err := middleware.GetUserID(c); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), refreshAllTimeout)
		defer cancel()
		if _, err := h.refresh.RefreshAll(ctx); err != nil {
			logger.Error("ProductHandler: background refresh failed: %v", err)
		}
	}()

	return c.SendStatus(fiber.StatusAccepted)
}

// RefreshOne re-tracks exactly one product, scoped to its owner
// POST /api/v1/products/:id/refresh
func (h *ProductHandler) RefreshOne(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	productID, err := parseProductID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid product id"})
	}

	tracked, err := h.refresh.RefreshProduct(c.Context(), userID, productID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Product not found"})
		}
		return trackErrorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(tracked)
}

// Stream pushes the user's price updates over Server-Sent Events
// GET /api/v1/products/stream
func (h *ProductHandler) Stream(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	updates, unsubscribe := h.hub.Subscribe(userID)

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer unsubscribe()

		keepAlive := time.NewTicker(30 * time.Second)
		defer keepAlive.Stop()

		for {
			select {
			case payload, ok := <-updates:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			case <-keepAlive.C:
				if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	}))

	return nil
}

// trackErrorResponse maps tracker failures to HTTP statuses
func trackErrorResponse(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidURL):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrNoProviderConfigured):
		return c.Status(fiber.StatusPreconditionFailed).JSON(fiber.Map{
			"error": "No LLM provider configured. Save your provider credentials first.",
		})
	case errors.Is(err, services.ErrExtractionFailed):
		logger.Error("ProductHandler: extraction failed: %v", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	default:
		logger.Error("ProductHandler: track failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to track product"})
	}
}

func parseProductID(c *fiber.Ctx) (uint64, error) {
	return strconv.ParseUint(c.Params("id"), 10, 64)
}
