/**
 * @description
 * API Route definitions.
 * Sets up the router groups, constructs the integration clients and services,
 * and assigns handlers.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/api/handlers
 * - backend/internal/api/middleware
 * - backend/internal/services
 * - backend/internal/integrations/{scraper,llm,resend}
 */

package api

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/mantis-project/backend/internal/api/handlers"
	"github.com/mantis-project/backend/internal/api/middleware"
	"github.com/mantis-project/backend/internal/config"
	"github.com/mantis-project/backend/internal/integrations/llm"
	"github.com/mantis-project/backend/internal/integrations/resend"
	"github.com/mantis-project/backend/internal/integrations/scraper"
	"github.com/mantis-project/backend/internal/services"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, db *gorm.DB, rdb *redis.Client, cfg *config.Config) {
	// 1. Initialize Middleware
	if err := middleware.InitAuthMiddleware(cfg); err != nil {
		log.Printf("Failed to init auth middleware: %v", err)
		// We don't panic here to allow app to start in dev modes without valid keys,
		// but protected routes will fail.
	}

	// 2. Initialize Integration Clients
	scraperClient := scraper.NewClient(cfg)
	llmClient := llm.NewClient(cfg)
	emailClient := resend.NewClient(cfg)

	// 3. Initialize Services
	otpService := services.NewOTPService(rdb, cfg)
	accountService := services.NewAccountService(db, otpService, emailClient, cfg)
	trackerService := services.NewTrackerService(db, rdb, scraperClient, llmClient)
	refreshService := services.NewRefreshService(db, trackerService)
	providerService := services.NewProviderService(db, llmClient)
	streamHub := services.NewPriceStreamHub(rdb, services.PriceUpdateChannel)

	// 4. Initialize Handlers
	authHandler := handlers.NewAuthHandler(accountService)
	productHandler := handlers.NewProductHandler(trackerService, refreshService, streamHub)
	providerHandler := handlers.NewProviderHandler(providerService)

	// 5. Define Routes
	api := app.Group("/api")
	v1 := api.Group("/v1")

	// Public Routes
	v1.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Auth Routes
	auth := v1.Group("/auth")
	auth.Post("/signup-initiate", authHandler.SignupInitiate)
	auth.Post("/verify-otp", authHandler.VerifyOTP)
	auth.Post("/login", authHandler.Login)
	auth.Get("/me", middleware.Protected(), authHandler.GetMe)
	auth.Post("/delete-initiate", middleware.Protected(), authHandler.DeleteInitiate)
	auth.Post("/delete-confirm", middleware.Protected(), authHandler.DeleteConfirm)

	// Product Routes (Protected)
	products := v1.Group("/products", middleware.Protected())
	products.Get("/", productHandler.List)
	products.Post("/track", productHandler.Track)
	products.Post("/refresh", productHandler.RefreshAll)
	products.Get("/stream", productHandler.Stream)
	products.Get("/:id", productHandler.Get)
	products.Post("/:id/refresh", productHandler.RefreshOne)
	products.Delete("/:id", productHandler.Delete)

	// Provider Routes (Protected)
	providers := v1.Group("/providers", middleware.Protected())
	providers.Get("/available", providerHandler.ListAvailable)
	providers.Get("/config", providerHandler.GetConfig)
	providers.Post("/config", providerHandler.SaveConfig)
	providers.Post("/test", providerHandler.TestConnection)
	providers.Get("/:provider/models", providerHandler.ListModels)
}
