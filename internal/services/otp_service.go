/**
 * @description
 * OTP store for the two-step signup and account-deletion flows.
 * Pending operations live in Redis under expiring keys; verification is an
 * atomic compare-and-consume so a code can never be used twice, even under
 * concurrent attempts.
 *
 * Keys:
 * - pending_registration:<email>  -> JSON {email, hashed_password, name, code}
 * - pending_deletion:<user_id>    -> JSON {user_id, code}
 *
 * @dependencies
 * - github.com/redis/go-redis/v9
 * - crypto/rand for code generation
 *
 * @notes
 * - Re-initiating a flow overwrites the pending key, invalidating the prior code.
 * - The Lua script deletes the key only when the supplied code matches; a
 *   mismatch leaves the pending operation intact for another attempt.
 */

package services

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/mantis-project/backend/internal/config"
	"github.com/redis/go-redis/v9"
)

const (
	pendingRegistrationPrefix = "pending_registration:"
	pendingDeletionPrefix     = "pending_deletion:"
	otpCodeSpace              = 1000000 // 6 digits
)

// consumeScript atomically compares the stored code and deletes the key on match.
// Returns the stored payload on success, false on mismatch, nil when the key is
// missing or expired (both surface as redis.Nil to the caller).
var consumeScript = redis.NewScript(`
local raw = redis.call("GET", KEYS[1])
if not raw then
  return false
end
local data = cjson.decode(raw)
if data.code == ARGV[1] then
  redis.call("DEL", KEYS[1])
  return raw
end
return false
`)

// PendingRegistration is the payload held between signup-initiate and verify.
// The password is already hashed before it touches Redis.
type PendingRegistration struct {
	Email          string `json:"email"`
	HashedPassword string `json:"hashed_password"`
	Name           string `json:"name"`
	Code           string `json:"code"`
}

type pendingDeletion struct {
	UserID string `json:"user_id"`
	Code   string `json:"code"`
}

// OTPService manages short-lived verification codes in Redis
type OTPService struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewOTPService creates a new OTPService
func NewOTPService(rdb *redis.Client, cfg *config.Config) *OTPService {
	return &OTPService{
		redis: rdb,
		ttl:   time.Duration(cfg.Refresh.OTPExpirationMinutes) * time.Minute,
	}
}

// GenerateCode returns a cryptographically random 6-digit code
func (s *OTPService) GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpCodeSpace))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// StorePendingRegistration saves a pending signup under its email with TTL,
// replacing any prior pending signup for that address.
func (s *OTPService) StorePendingRegistration(ctx context.Context, reg PendingRegistration) error {
	payload, err := json.Marshal(reg)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, pendingRegistrationPrefix+reg.Email, payload, s.ttl).Err()
}

// ConsumeRegistration atomically checks the code and removes the pending
// signup. Returns ErrInvalidOrExpiredCode on any mismatch or expiry.
func (s *OTPService) ConsumeRegistration(ctx context.Context, email, code string) (*PendingRegistration, error) {
	raw, err := s.consume(ctx, pendingRegistrationPrefix+email, code)
	if err != nil {
		return nil, err
	}

	var reg PendingRegistration
	if err := json.Unmarshal([]byte(raw), &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

// DiscardRegistration drops a pending signup (used when OTP delivery fails)
func (s *OTPService) DiscardRegistration(ctx context.Context, email string) error {
	return s.redis.Del(ctx, pendingRegistrationPrefix+email).Err()
}

// StorePendingDeletion saves a pending account deletion keyed by user id
func (s *OTPService) StorePendingDeletion(ctx context.Context, userID uuid.UUID, code string) error {
	payload, err := json.Marshal(pendingDeletion{UserID: userID.String(), Code: code})
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, pendingDeletionPrefix+userID.String(), payload, s.ttl).Err()
}

// ConsumeDeletion atomically checks and removes a pending deletion code
func (s *OTPService) ConsumeDeletion(ctx context.Context, userID uuid.UUID, code string) error {
	_, err := s.consume(ctx, pendingDeletionPrefix+userID.String(), code)
	return err
}

// DiscardDeletion drops a pending deletion (used when OTP delivery fails)
func (s *OTPService) DiscardDeletion(ctx context.Context, userID uuid.UUID) error {
	return s.redis.Del(ctx, pendingDeletionPrefix+userID.String()).Err()
}

func (s *OTPService) consume(ctx context.Context, key, code string) (string, error) {
	if code == "" {
		return "", ErrInvalidOrExpiredCode
	}

	res, err := consumeScript.Run(ctx, s.redis, []string{key}, code).Result()
	if errors.Is(err, redis.Nil) {
		// Key missing, expired, or code mismatch — fail closed either way
		return "", ErrInvalidOrExpiredCode
	}
	if err != nil {
		return "", err
	}

	raw, ok := res.(string)
	if !ok || raw == "" {
		return "", ErrInvalidOrExpiredCode
	}
	return raw, nil
}
