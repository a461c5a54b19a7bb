/**
 * @description
 * Worker Service Entry Point.
 * Runs the scheduled price refresh: every REFRESH_INTERVAL_HOURS, aligned to
 * the local wall clock (00:00, 06:00, 12:00, 18:00 for the default 6), every
 * tracked product across all users is re-tracked with its owner's own
 * credentials.
 *
 * @dependencies
 * - backend/internal/config
 * - backend/internal/db
 * - backend/internal/services
 * - backend/internal/integrations/{scraper,llm}
 *
 * @notes
 * - A Redis SETNX lock per tick keeps multiple worker replicas from running
 *   the same refresh pass twice.
 * - Shuts down gracefully on SIGINT/SIGTERM; an in-flight pass is cancelled
 *   through its context.
 */

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mantis-project/backend/internal/config"
	"github.com/mantis-project/backend/internal/db"
	"github.com/mantis-project/backend/internal/integrations/llm"
	"github.com/mantis-project/backend/internal/integrations/scraper"
	"github.com/mantis-project/backend/internal/logger"
	"github.com/mantis-project/backend/internal/services"
	"github.com/redis/go-redis/v9"
)

const tickLockPrefix = "mantis:refresh_lock:"

func main() {
	logger.Info("🔥 Starting Mantis Worker...")

	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	// 2. Connect DBs
	pgDB, err := db.ConnectPostgres(cfg)
	if err != nil {
		logger.Fatal("Postgres connection failed: %v", err)
	}
	if err := db.AutoMigrate(pgDB); err != nil {
		logger.Fatal("Migration failed: %v", err)
	}

	redisClient, err := db.ConnectRedis(cfg)
	if err != nil {
		logger.Fatal("Redis connection failed: %v", err)
	}

	// 3. Initialize Services
	scraperClient := scraper.NewClient(cfg)
	llmClient := llm.NewClient(cfg)
	trackerService := services.NewTrackerService(pgDB, redisClient, scraperClient, llmClient)
	refreshService := services.NewRefreshService(pgDB, trackerService)

	// 4. Context with Cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interval := time.Duration(cfg.Refresh.IntervalHours) * time.Hour

	// 5. Refresh Loop
	go func() {
		for {
			tick := nextAlignedTick(time.Now(), interval)
			logger.Info("⏰ Next refresh scheduled for %s", tick.Format(time.RFC3339))

			timer := time.NewTimer(time.Until(tick))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}

			runRefresh(ctx, redisClient, refreshService, tick, interval)
		}
	}()

	// 6. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")
	cancel()

	time.Sleep(1 * time.Second) // Give the in-flight pass time to observe cancellation
	logger.Info("Worker exited.")
}

// nextAlignedTick returns the next refresh time after now, aligned to whole
// multiples of interval from local midnight. A worker started at 14:30 with a
// 6h interval fires at 18:00, not 20:30.
func nextAlignedTick(now time.Time, interval time.Duration) time.Time {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	elapsed := now.Sub(midnight)
	return midnight.Add((elapsed/interval + 1) * interval)
}

// runRefresh acquires the per-tick lock and runs one full refresh pass
func runRefresh(ctx context.Context, rdb *redis.Client, rs *services.RefreshService, tick time.Time, interval time.Duration) {
	lockKey := fmt.Sprintf("%s%d", tickLockPrefix, tick.Unix())
	acquired, err := rdb.SetNX(ctx, lockKey, "1", interval).Result()
	if err != nil {
		logger.Error("Failed to acquire refresh lock: %v", err)
		return
	}
	if !acquired {
		logger.Info("Refresh tick %s already claimed by another worker, skipping", tick.Format(time.RFC3339))
		return
	}

	logger.Info("🔄 Starting scheduled refresh pass...")
	start := time.Now()

	summary, err := rs.RefreshAll(ctx)
	if err != nil {
		logger.Error("❌ Refresh pass aborted: %v", err)
		return
	}

	logger.Info("✅ Refresh pass done in %s: %d/%d succeeded, %d failed",
		time.Since(start).Round(time.Second), summary.Succeeded, summary.Total, len(summary.Failures))
}
