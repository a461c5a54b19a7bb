/**
 * @description
 * Account Service — OTP-gated registration, login, and account deletion.
 * Signup and deletion are two-step flows: initiate stores a short-lived code
 * (via OTPService) and emails it; the confirm step consumes the code
 * atomically and then either creates the user or cascades the deletion.
 * There is no partial-success state in either flow.
 *
 * @dependencies
 * - gorm.io/gorm
 * - golang.org/x/crypto/bcrypt
 * - github.com/golang-jwt/jwt/v5
 * - backend/internal/services (OTPService)
 */

package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/mantis-project/backend/internal/config"
	"github.com/mantis-project/backend/internal/logger"
	"github.com/mantis-project/backend/internal/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLength = 8

// EmailSender delivers OTP emails (external collaborator)
type EmailSender interface {
	SendSignupOTP(ctx context.Context, to, name, code string) error
	SendDeletionOTP(ctx context.Context, to, name, code string) error
}

// AccountService handles the user lifecycle
type AccountService struct {
	db        *gorm.DB
	otp       *OTPService
	email     EmailSender
	jwtSecret []byte
	tokenTTL  time.Duration
}

// NewAccountService creates a new AccountService
func NewAccountService(db *gorm.DB, otp *OTPService, email EmailSender, cfg *config.Config) *AccountService {
	return &AccountService{
		db:        db,
		otp:       otp,
		email:     email,
		jwtSecret: []byte(cfg.Auth.JWTSecret),
		tokenTTL:  time.Duration(cfg.Auth.TokenTTLMinutes) * time.Minute,
	}
}

// SignupInitiate validates the request, stores a pending registration with a
// fresh code, and emails it. No User row is created yet.
func (s *AccountService) SignupInitiate(ctx context.Context, email, password, name string) error {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return errors.New("a valid email address is required")
	}
	if len(password) < minPasswordLength {
		return ErrWeakPassword
	}

	var existing models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	if err == nil {
		return ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	code, err := s.otp.GenerateCode()
	if err != nil {
		return err
	}

	// Re-initiating overwrites any prior pending code for this email
	if err := s.otp.StorePendingRegistration(ctx, PendingRegistration{
		Email:          email,
		HashedPassword: string(hashed),
		Name:           name,
		Code:           code,
	}); err != nil {
		return err
	}

	if err := s.email.SendSignupOTP(ctx, email, name, code); err != nil {
		// Clean up so a failed delivery leaves no dangling pending signup
		if discardErr := s.otp.DiscardRegistration(ctx, email); discardErr != nil {
			logger.Error("AccountService: failed to discard pending registration for %s: %v", email, discardErr)
		}
		return errors.Join(ErrEmailDelivery, err)
	}

	return nil
}

// VerifyOTP consumes the pending registration and creates the verified user.
// Returns the session token for the new account.
func (s *AccountService) VerifyOTP(ctx context.Context, email, code string) (string, *models.User, error) {
	email = normalizeEmail(email)

	reg, err := s.otp.ConsumeRegistration(ctx, email, code)
	if err != nil {
		return "", nil, err
	}

	// Race protection: the address may have registered through a parallel flow
	var existing models.User
	err = s.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	if err == nil {
		return "", nil, ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil, err
	}

	now := time.Now()
	user := models.User{
		Email:          reg.Email,
		HashedPassword: reg.HashedPassword,
		Name:           reg.Name,
		IsActive:       true,
		IsVerified:     true, // proven by OTP
		CreatedAt:      now,
		LastLogin:      &now,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return "", nil, err
	}

	token, err := s.issueToken(&user)
	if err != nil {
		return "", nil, err
	}
	return token, &user, nil
}

// Login checks credentials and issues a session token
func (s *AccountService) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	email = normalizeEmail(email)

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(password)) != nil {
		return "", nil, ErrInvalidCredentials
	}
	if !user.IsActive || !user.IsVerified {
		return "", nil, ErrInvalidCredentials
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&user).Update("last_login", now).Error; err != nil {
		logger.Error("AccountService: failed to update last_login for %s: %v", user.ID, err)
	}
	user.LastLogin = &now

	token, err := s.issueToken(&user)
	if err != nil {
		return "", nil, err
	}
	return token, &user, nil
}

// GetUser loads one user by id
func (s *AccountService) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// DeleteInitiate stores a deletion code for the user and emails a warning
func (s *AccountService) DeleteInitiate(ctx context.Context, userID uuid.UUID) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}

	code, err := s.otp.GenerateCode()
	if err != nil {
		return err
	}
	if err := s.otp.StorePendingDeletion(ctx, userID, code); err != nil {
		return err
	}

	if err := s.email.SendDeletionOTP(ctx, user.Email, user.Name, code); err != nil {
		if discardErr := s.otp.DiscardDeletion(ctx, userID); discardErr != nil {
			logger.Error("AccountService: failed to discard pending deletion for %s: %v", userID, discardErr)
		}
		return errors.Join(ErrEmailDelivery, err)
	}

	return nil
}

// DeleteConfirm consumes the deletion code and removes the user with every
// owned row in one transaction: history, products, provider configs, account.
func (s *AccountService) DeleteConfirm(ctx context.Context, userID uuid.UUID, code string) error {
	if err := s.otp.ConsumeDeletion(ctx, userID, code); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		err := tx.Where("id = ?", userID).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		productIDs := tx.Model(&models.Product{}).Select("id").Where("user_id = ?", userID)
		if err := tx.Where("product_id IN (?)", productIDs).Delete(&models.PriceHistory{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.Product{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.ProviderConfig{}).Error; err != nil {
			return err
		}
		return tx.Delete(&user).Error
	})
}

// issueToken signs an HMAC session token carrying the user id
func (s *AccountService) issueToken(user *models.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   user.ID.String(),
		"email": user.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(s.tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
