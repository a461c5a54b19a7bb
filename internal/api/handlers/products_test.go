package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/mantis-project/backend/internal/services"
	"github.com/redis/go-redis/v9"
)

func TestStreamDeliversOwnUpdatesOnly(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	defer redisClient.Close()

	hub := services.NewPriceStreamHub(redisClient, services.PriceUpdateChannel)
	handler := NewProductHandler(nil, nil, hub)

	userID := uuid.New()
	strangerID := uuid.New()

	app := fiber.New()
	app.Get("/api/v1/products/stream", func(c *fiber.Ctx) error {
		c.Locals("user_id", userID)
		return c.Next()
	}, handler.Stream)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	go func() { _ = app.Listener(ln) }()
	// The open SSE connection keeps a graceful Shutdown waiting forever,
	// so cap the teardown instead of blocking on it.
	defer func() { _ = app.ShutdownWithTimeout(time.Second) }()
	baseURL := "http://" + ln.Addr().String()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	ownPayload, _ := json.Marshal(services.PriceUpdate{
		ProductID: 1,
		UserID:    userID,
		URL:       "https://shop.example.com/widget",
		Price:     42.5,
		Currency:  "USD",
		Trend:     services.TrendDown,
	})
	strangerPayload, _ := json.Marshal(services.PriceUpdate{
		ProductID: 2,
		UserID:    strangerID,
		URL:       "https://shop.example.com/other",
		Price:     10,
		Currency:  "USD",
		Trend:     services.TrendUp,
	})

	// Publish repeatedly until the hub's subscription is live; the stranger's
	// update always goes first so a routing bug would surface it.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(50 * time.Millisecond):
				_ = redisClient.Publish(context.Background(), services.PriceUpdateChannel, strangerPayload).Err()
				_ = redisClient.Publish(context.Background(), services.PriceUpdateChannel, ownPayload).Err()
			}
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/v1/products/stream", nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("failed to call SSE endpoint: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status code: %d", resp.StatusCode)
	}

	reader := bufio.NewReader(resp.Body)

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("failed to read SSE line: %v", err)
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		if strings.Contains(line, strangerID.String()) {
			t.Fatalf("received another user's update: %s", line)
		}
		if strings.Contains(line, userID.String()) {
			if !strings.Contains(line, `"https://shop.example.com/widget"`) {
				t.Fatalf("unexpected SSE payload: %s", line)
			}
			return
		}
	}
}
