package services

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/mantis-project/backend/internal/config"
	"github.com/redis/go-redis/v9"
)

func newTestOTPService(t *testing.T) (*OTPService, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &config.Config{
		Refresh: config.RefreshConfig{OTPExpirationMinutes: 10},
	}
	return NewOTPService(rdb, cfg), mr
}

func TestGenerateCodeFormat(t *testing.T) {
	svc, _ := newTestOTPService(t)

	for i := 0; i < 20; i++ {
		code, err := svc.GenerateCode()
		if err != nil {
			t.Fatalf("generate failed: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("expected 6-digit code, got %q", code)
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("code %q contains non-digit", code)
			}
		}
	}
}

func TestRegistrationConsume(t *testing.T) {
	svc, _ := newTestOTPService(t)
	ctx := context.Background()

	reg := PendingRegistration{
		Email:          "alice@example.com",
		HashedPassword: "$2a$10$hash",
		Name:           "Alice",
		Code:           "123456",
	}
	if err := svc.StorePendingRegistration(ctx, reg); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	got, err := svc.ConsumeRegistration(ctx, reg.Email, "123456")
	if err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	if got.HashedPassword != reg.HashedPassword || got.Name != reg.Name {
		t.Errorf("consumed payload mismatch: %+v", got)
	}

	// Single use: the code is gone after a successful consume
	if _, err := svc.ConsumeRegistration(ctx, reg.Email, "123456"); !errors.Is(err, ErrInvalidOrExpiredCode) {
		t.Fatalf("expected ErrInvalidOrExpiredCode on second consume, got %v", err)
	}
}

func TestRegistrationWrongCodeLeavesPending(t *testing.T) {
	svc, _ := newTestOTPService(t)
	ctx := context.Background()

	reg := PendingRegistration{Email: "bob@example.com", Code: "654321"}
	if err := svc.StorePendingRegistration(ctx, reg); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	if _, err := svc.ConsumeRegistration(ctx, reg.Email, "000000"); !errors.Is(err, ErrInvalidOrExpiredCode) {
		t.Fatalf("expected ErrInvalidOrExpiredCode, got %v", err)
	}

	// A wrong attempt must not burn the real code
	if _, err := svc.ConsumeRegistration(ctx, reg.Email, "654321"); err != nil {
		t.Fatalf("correct code should still work after a wrong attempt: %v", err)
	}
}

func TestRegistrationExpiry(t *testing.T) {
	svc, mr := newTestOTPService(t)
	ctx := context.Background()

	reg := PendingRegistration{Email: "late@example.com", Code: "111111"}
	if err := svc.StorePendingRegistration(ctx, reg); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	mr.FastForward(11 * time.Minute)

	if _, err := svc.ConsumeRegistration(ctx, reg.Email, "111111"); !errors.Is(err, ErrInvalidOrExpiredCode) {
		t.Fatalf("expected ErrInvalidOrExpiredCode after expiry, got %v", err)
	}
}

func TestRegistrationReinitiateOverwrites(t *testing.T) {
	svc, _ := newTestOTPService(t)
	ctx := context.Background()

	email := "again@example.com"
	if err := svc.StorePendingRegistration(ctx, PendingRegistration{Email: email, Code: "111111"}); err != nil {
		t.Fatalf("first store failed: %v", err)
	}
	if err := svc.StorePendingRegistration(ctx, PendingRegistration{Email: email, Code: "222222"}); err != nil {
		t.Fatalf("second store failed: %v", err)
	}

	if _, err := svc.ConsumeRegistration(ctx, email, "111111"); !errors.Is(err, ErrInvalidOrExpiredCode) {
		t.Fatalf("stale code must be invalid after re-initiate, got %v", err)
	}
	if _, err := svc.ConsumeRegistration(ctx, email, "222222"); err != nil {
		t.Fatalf("fresh code should work: %v", err)
	}
}

func TestDeletionConsume(t *testing.T) {
	svc, _ := newTestOTPService(t)
	ctx := context.Background()
	userID := uuid.New()

	if err := svc.StorePendingDeletion(ctx, userID, "424242"); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	if err := svc.ConsumeDeletion(ctx, userID, "999999"); !errors.Is(err, ErrInvalidOrExpiredCode) {
		t.Fatalf("expected ErrInvalidOrExpiredCode for wrong code, got %v", err)
	}
	if err := svc.ConsumeDeletion(ctx, userID, "424242"); err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	if err := svc.ConsumeDeletion(ctx, userID, "424242"); !errors.Is(err, ErrInvalidOrExpiredCode) {
		t.Fatalf("deletion code must be single use, got %v", err)
	}
}

func TestDiscardRegistration(t *testing.T) {
	svc, _ := newTestOTPService(t)
	ctx := context.Background()

	reg := PendingRegistration{Email: "drop@example.com", Code: "333333"}
	if err := svc.StorePendingRegistration(ctx, reg); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if err := svc.DiscardRegistration(ctx, reg.Email); err != nil {
		t.Fatalf("discard failed: %v", err)
	}
	if _, err := svc.ConsumeRegistration(ctx, reg.Email, "333333"); !errors.Is(err, ErrInvalidOrExpiredCode) {
		t.Fatalf("discarded registration must not be consumable, got %v", err)
	}
}
