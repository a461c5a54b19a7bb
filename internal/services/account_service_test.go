package services

import (
	"context"
	"errors"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mantis-project/backend/internal/config"
	"github.com/mantis-project/backend/internal/models"
	"gorm.io/gorm"
)

const testJWTSecret = "test-secret"

// fakeEmailSender records the last code sent instead of hitting Resend
type fakeEmailSender struct {
	lastSignupCode   string
	lastDeletionCode string
	failSend         bool
}

func (f *fakeEmailSender) SendSignupOTP(ctx context.Context, to, name, code string) error {
	if f.failSend {
		return errors.New("smtp down")
	}
	f.lastSignupCode = code
	return nil
}

func (f *fakeEmailSender) SendDeletionOTP(ctx context.Context, to, name, code string) error {
	if f.failSend {
		return errors.New("smtp down")
	}
	f.lastDeletionCode = code
	return nil
}

func newTestAccountService(t *testing.T) (*AccountService, *gorm.DB, *fakeEmailSender) {
	t.Helper()

	db := openTestDB(t)
	otp, _ := newTestOTPService(t)
	sender := &fakeEmailSender{}

	cfg := &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:       testJWTSecret,
			TokenTTLMinutes: 60,
		},
	}
	return NewAccountService(db, otp, sender, cfg), db, sender
}

func TestSignupFlow(t *testing.T) {
	svc, db, sender := newTestAccountService(t)
	ctx := context.Background()

	if err := svc.SignupInitiate(ctx, "Alice@Example.com", "password123", "Alice"); err != nil {
		t.Fatalf("initiate failed: %v", err)
	}
	if sender.lastSignupCode == "" {
		t.Fatal("no OTP was sent")
	}

	// No user row exists before verification
	var count int64
	db.Model(&models.User{}).Count(&count)
	if count != 0 {
		t.Fatalf("initiate must not create the user, found %d rows", count)
	}

	token, user, err := svc.VerifyOTP(ctx, "alice@example.com", sender.lastSignupCode)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Errorf("expected normalized email, got %s", user.Email)
	}
	if !user.IsVerified || !user.IsActive {
		t.Error("verified signup must yield an active, verified user")
	}

	parsed, err := jwt.Parse(token, func(tk *jwt.Token) (interface{}, error) {
		return []byte(testJWTSecret), nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("issued token does not verify: %v", err)
	}
	claims := parsed.Claims.(jwt.MapClaims)
	if claims["sub"] != user.ID.String() {
		t.Errorf("token subject mismatch: %v", claims["sub"])
	}
}

func TestSignupWeakPassword(t *testing.T) {
	svc, _, _ := newTestAccountService(t)

	if err := svc.SignupInitiate(context.Background(), "short@example.com", "1234567", ""); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
}

func TestSignupEmailTaken(t *testing.T) {
	svc, db, _ := newTestAccountService(t)
	createTestUser(t, db, "taken@example.com")

	if err := svc.SignupInitiate(context.Background(), "taken@example.com", "password123", ""); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestSignupDeliveryFailureDiscardsPending(t *testing.T) {
	svc, _, sender := newTestAccountService(t)
	ctx := context.Background()

	sender.failSend = true
	err := svc.SignupInitiate(ctx, "ghost@example.com", "password123", "")
	if !errors.Is(err, ErrEmailDelivery) {
		t.Fatalf("expected ErrEmailDelivery, got %v", err)
	}

	// The pending registration is discarded, so no code can verify
	if _, _, err := svc.VerifyOTP(ctx, "ghost@example.com", "000000"); !errors.Is(err, ErrInvalidOrExpiredCode) {
		t.Fatalf("expected ErrInvalidOrExpiredCode, got %v", err)
	}
}

func TestVerifyWrongCode(t *testing.T) {
	svc, _, sender := newTestAccountService(t)
	ctx := context.Background()

	if err := svc.SignupInitiate(ctx, "carol@example.com", "password123", "Carol"); err != nil {
		t.Fatalf("initiate failed: %v", err)
	}

	wrong := "000000"
	if wrong == sender.lastSignupCode {
		wrong = "000001"
	}
	if _, _, err := svc.VerifyOTP(ctx, "carol@example.com", wrong); !errors.Is(err, ErrInvalidOrExpiredCode) {
		t.Fatalf("expected ErrInvalidOrExpiredCode, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	svc, _, sender := newTestAccountService(t)
	ctx := context.Background()

	if err := svc.SignupInitiate(ctx, "dave@example.com", "password123", "Dave"); err != nil {
		t.Fatalf("initiate failed: %v", err)
	}
	if _, _, err := svc.VerifyOTP(ctx, "dave@example.com", sender.lastSignupCode); err != nil {
		t.Fatalf("verify failed: %v", err)
	}

	token, user, err := svc.Login(ctx, "DAVE@example.com", "password123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if token == "" || user == nil {
		t.Fatal("login must return a token and the user")
	}
	if user.LastLogin == nil {
		t.Error("login should stamp last_login")
	}

	if _, _, err := svc.Login(ctx, "dave@example.com", "wrongpassword"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for bad password, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestDeleteFlowCascades(t *testing.T) {
	svc, db, sender := newTestAccountService(t)
	ctx := context.Background()

	userID := createTestUser(t, db, "erin@example.com")
	configureProvider(t, db, userID)

	// Give the user a product with history
	product := models.Product{UserID: userID, URL: "https://shop.example.com/widget", Price: 10, Currency: "USD"}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("failed to create product: %v", err)
	}
	if err := db.Create(&models.PriceHistory{ProductID: product.ID, Price: 10, Currency: "USD"}).Error; err != nil {
		t.Fatalf("failed to create history: %v", err)
	}

	if err := svc.DeleteInitiate(ctx, userID); err != nil {
		t.Fatalf("delete initiate failed: %v", err)
	}
	if sender.lastDeletionCode == "" {
		t.Fatal("no deletion code was sent")
	}

	if err := svc.DeleteConfirm(ctx, userID, sender.lastDeletionCode); err != nil {
		t.Fatalf("delete confirm failed: %v", err)
	}

	for name, model := range map[string]interface{}{
		"users":            &models.User{},
		"products":         &models.Product{},
		"price_history":    &models.PriceHistory{},
		"provider_configs": &models.ProviderConfig{},
	} {
		var count int64
		db.Model(model).Count(&count)
		if count != 0 {
			t.Errorf("expected no %s rows after deletion, got %d", name, count)
		}
	}
}

func TestDeleteConfirmWrongCode(t *testing.T) {
	svc, db, sender := newTestAccountService(t)
	ctx := context.Background()

	userID := createTestUser(t, db, "frank@example.com")
	if err := svc.DeleteInitiate(ctx, userID); err != nil {
		t.Fatalf("delete initiate failed: %v", err)
	}

	wrong := "000000"
	if wrong == sender.lastDeletionCode {
		wrong = "000001"
	}
	if err := svc.DeleteConfirm(ctx, userID, wrong); !errors.Is(err, ErrInvalidOrExpiredCode) {
		t.Fatalf("expected ErrInvalidOrExpiredCode, got %v", err)
	}

	// Account survives the failed attempt
	var count int64
	db.Model(&models.User{}).Count(&count)
	if count != 1 {
		t.Errorf("user must survive a wrong deletion code, found %d rows", count)
	}
}
