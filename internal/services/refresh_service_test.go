package services

import (
	"context"
	"errors"
	"testing"

	"github.com/mantis-project/backend/internal/integrations/llm"
	"github.com/mantis-project/backend/internal/models"
)

func TestRefreshAllIsolatesFailures(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	alice := createTestUser(t, db, "alice@example.com")
	bob := createTestUser(t, db, "bob@example.com")
	configureProvider(t, db, alice)
	// Bob has no provider config: his product must fail without aborting the pass

	for _, p := range []models.Product{
		{UserID: alice, URL: "https://shop.example.com/a", Price: 100, Currency: "USD"},
		{UserID: bob, URL: "https://shop.example.com/b", Price: 100, Currency: "USD"},
	} {
		if err := db.Create(&p).Error; err != nil {
			t.Fatalf("failed to seed product %s: %v", p.URL, err)
		}
	}

	tracker := newTestTracker(db, &fakeExtractor{queue: []llm.Extraction{extractionAt(95)}})
	refresh := NewRefreshService(db, tracker)

	summary, err := refresh.RefreshAll(ctx)
	if err != nil {
		t.Fatalf("refresh pass failed: %v", err)
	}

	if summary.Total != 2 {
		t.Errorf("expected 2 products visited, got %d", summary.Total)
	}
	if summary.Succeeded != 1 {
		t.Errorf("expected 1 success, got %d", summary.Succeeded)
	}
	if len(summary.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(summary.Failures))
	}
	if summary.Failures[0].UserID != bob {
		t.Errorf("the failure should belong to the user without credentials")
	}
}

func TestRefreshAllUsesOwnerCredentials(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	alice := createTestUser(t, db, "alice@example.com")
	configureProvider(t, db, alice)

	tracker := newTestTracker(db, &fakeExtractor{queue: []llm.Extraction{
		extractionAt(100),
		extractionAt(90),
	}})
	refresh := NewRefreshService(db, tracker)

	first, err := tracker.Track(ctx, alice, "https://shop.example.com/widget")
	if err != nil {
		t.Fatalf("track failed: %v", err)
	}

	summary, err := refresh.RefreshAll(ctx)
	if err != nil {
		t.Fatalf("refresh pass failed: %v", err)
	}
	if summary.Succeeded != 1 {
		t.Fatalf("expected the product to refresh, summary: %+v", summary)
	}

	// The refresh appended a second observation to the same product
	var historyCount int64
	db.Model(&models.PriceHistory{}).Where("product_id = ?", first.ID).Count(&historyCount)
	if historyCount != 2 {
		t.Errorf("expected 2 history entries after refresh, got %d", historyCount)
	}
}

func TestRefreshProductScopedToOwner(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	alice := createTestUser(t, db, "alice@example.com")
	bob := createTestUser(t, db, "bob@example.com")
	configureProvider(t, db, alice)

	tracker := newTestTracker(db, &fakeExtractor{queue: []llm.Extraction{
		extractionAt(100),
		extractionAt(90),
	}})
	refresh := NewRefreshService(db, tracker)

	tracked, err := tracker.Track(ctx, alice, "https://shop.example.com/widget")
	if err != nil {
		t.Fatalf("track failed: %v", err)
	}

	if _, err := refresh.RefreshProduct(ctx, bob, tracked.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign refresh must look like a missing product, got %v", err)
	}

	refreshed, err := refresh.RefreshProduct(ctx, alice, tracked.ID)
	if err != nil {
		t.Fatalf("owner refresh failed: %v", err)
	}
	if refreshed.Price != 90 {
		t.Errorf("expected refreshed price 90, got %f", refreshed.Price)
	}
	if refreshed.Trend != TrendDown {
		t.Errorf("expected trend down, got %s", refreshed.Trend)
	}
}
