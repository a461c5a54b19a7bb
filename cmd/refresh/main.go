package main

import (
	"context"
	"log"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/mantis-project/backend/internal/config"
	"github.com/mantis-project/backend/internal/db"
	"github.com/mantis-project/backend/internal/integrations/llm"
	"github.com/mantis-project/backend/internal/integrations/scraper"
	"github.com/mantis-project/backend/internal/models"
	"github.com/mantis-project/backend/internal/services"
	"github.com/redis/go-redis/v9"
)

// One-shot manual refresh of every tracked product, outside the scheduler.
// Uses a throwaway in-memory redis so price-update publishes have somewhere
// to go without requiring the real instance.
func main() {
	log.Println("🚀 Starting manual price refresh...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	pgDB, err := db.ConnectPostgres(cfg)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}

	mr, err := miniredis.Run()
	if err != nil {
		log.Fatalf("failed to start in-memory redis: %v", err)
	}
	defer mr.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	scraperClient := scraper.NewClient(cfg)
	llmClient := llm.NewClient(cfg)
	trackerService := services.NewTrackerService(pgDB, redisClient, scraperClient, llmClient)
	refreshService := services.NewRefreshService(pgDB, trackerService)

	ctx := context.Background()

	summary, err := refreshService.RefreshAll(ctx)
	if err != nil {
		log.Fatalf("refresh pass failed: %v", err)
	}

	for _, f := range summary.Failures {
		log.Printf("⚠️ Product %d (%s) failed: %s", f.ProductID, f.URL, f.Error)
	}

	var productCount int64
	if err := pgDB.Model(&models.Product{}).Count(&productCount).Error; err == nil {
		log.Printf("✅ Products tracked in Postgres: %d", productCount)
	} else {
		log.Printf("⚠️ Failed to count products: %v", err)
	}

	log.Printf("✅ Manual refresh completed: %d/%d succeeded.", summary.Succeeded, summary.Total)
}
