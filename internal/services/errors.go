/**
 * @description
 * Sentinel errors shared across services.
 * Handlers route these with errors.Is to pick HTTP statuses; services wrap
 * underlying causes with fmt.Errorf("%w: ...").
 */

package services

import "errors"

var (
	// ErrNotFound covers both genuinely missing rows and rows owned by a
	// different user. The two must be indistinguishable to the caller.
	ErrNotFound = errors.New("not found")

	// ErrNoProviderConfigured means the requesting user has no LLM provider
	// credentials saved. Never satisfied by another user's config.
	ErrNoProviderConfigured = errors.New("no llm provider configured")

	// ErrExtractionFailed wraps scraper or LLM failures. No records are
	// written when it is returned.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrInvalidOrExpiredCode is returned for any OTP mismatch, reuse, or
	// expiry. Always fails closed.
	ErrInvalidOrExpiredCode = errors.New("invalid or expired code")

	// ErrEmailDelivery wraps failures from the email collaborator.
	ErrEmailDelivery = errors.New("failed to send email")

	// ErrEmailTaken means the address already belongs to a registered user.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidURL rejects malformed or non-absolute product URLs before any
	// side effect.
	ErrInvalidURL = errors.New("invalid product url")

	// ErrWeakPassword rejects passwords shorter than 8 characters.
	ErrWeakPassword = errors.New("password must be at least 8 characters")

	// ErrInvalidCredentials covers unknown email, wrong password, and
	// disabled or unverified accounts on login.
	ErrInvalidCredentials = errors.New("incorrect email or password")
)
