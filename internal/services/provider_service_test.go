package services

import (
	"context"
	"testing"

	"github.com/mantis-project/backend/internal/models"
)

func TestSaveConfigReplacesPrevious(t *testing.T) {
	db := openTestDB(t)
	svc := NewProviderService(db, nil)
	ctx := context.Background()

	userID := createTestUser(t, db, "cfg@example.com")

	first, err := svc.SaveConfig(ctx, userID, "gemini", "key-1", "gemini-2.0-flash")
	if err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	if first.ProviderName != "gemini" {
		t.Errorf("unexpected provider: %s", first.ProviderName)
	}

	second, err := svc.SaveConfig(ctx, userID, "Groq", "key-2", "llama-3.3-70b-versatile")
	if err != nil {
		t.Fatalf("second save failed: %v", err)
	}
	if second.ProviderName != "groq" || second.APIKey != "key-2" {
		t.Errorf("save must replace the previous config, got %+v", second)
	}

	// Still a single row per user
	var count int64
	db.Model(&models.ProviderConfig{}).Where("user_id = ?", userID).Count(&count)
	if count != 1 {
		t.Errorf("expected 1 config row, got %d", count)
	}
}

func TestSaveConfigValidation(t *testing.T) {
	db := openTestDB(t)
	svc := NewProviderService(db, nil)
	ctx := context.Background()

	userID := createTestUser(t, db, "badcfg@example.com")

	if _, err := svc.SaveConfig(ctx, userID, "openai", "key", "gpt-4o"); err == nil {
		t.Error("unsupported provider must be rejected")
	}
	if _, err := svc.SaveConfig(ctx, userID, "gemini", "  ", "gemini-2.0-flash"); err == nil {
		t.Error("blank api key must be rejected")
	}
	if _, err := svc.SaveConfig(ctx, userID, "gemini", "key", ""); err == nil {
		t.Error("blank model must be rejected")
	}
}

func TestGetConfigAbsentIsNil(t *testing.T) {
	db := openTestDB(t)
	svc := NewProviderService(db, nil)

	userID := createTestUser(t, db, "empty@example.com")

	cfg, err := svc.GetConfig(context.Background(), userID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if cfg != nil {
		t.Errorf("expected nil config for user without one, got %+v", cfg)
	}
}
