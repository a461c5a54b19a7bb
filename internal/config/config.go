/**
 * @description
 * Configuration loader for the Mantis Price Tracker backend.
 * Responsible for reading environment variables, setting defaults, and performing strict validation.
 *
 * @dependencies
 * - github.com/joho/godotenv: For loading .env files
 * - standard "os": For reading env vars
 * - standard "fmt": For error reporting
 *
 * @notes
 * - Fails fast if critical variables (Database URL, JWT secret) are missing.
 * - Uses a Singleton-like pattern where Load() returns a Config struct.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig
	DB         DBConfig
	Redis      RedisConfig
	Auth       AuthConfig
	Email      EmailConfig
	Extraction ExtractionConfig
	Refresh    RefreshConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port string
	Env  string // "development" or "production"
}

// DBConfig holds PostgreSQL settings
type DBConfig struct {
	URL string
}

// RedisConfig holds Redis settings
type RedisConfig struct {
	URL string
}

// AuthConfig holds session token settings
type AuthConfig struct {
	JWTSecret       string
	TokenTTLMinutes int
}

// EmailConfig holds Resend settings for OTP delivery
type EmailConfig struct {
	ResendAPIKey string
	FromEmail    string
}

// ExtractionConfig holds settings for the scraper service and LLM extraction
type ExtractionConfig struct {
	ScraperURL string
	MaxChars   int // page text is truncated to this many characters before extraction
}

// RefreshConfig holds scheduler and OTP timing settings
type RefreshConfig struct {
	IntervalHours        int
	OTPExpirationMinutes int
}

// Load reads .env file and populates the Config struct
func Load() (*Config, error) {
	// Attempt to load .env, but don't crash if it fails (containers usually inject env vars directly)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Env:  getEnv("GO_ENV", "development"),
		},
		DB: DBConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Auth: AuthConfig{
			JWTSecret:       sanitizeCredential(getEnv("JWT_SECRET", "")),
			TokenTTLMinutes: getEnvAsInt("ACCESS_TOKEN_EXPIRE_MINUTES", 60*24),
		},
		Email: EmailConfig{
			ResendAPIKey: sanitizeCredential(getEnv("RESEND_API_KEY", "")),
			FromEmail:    getEnv("RESEND_FROM_EMAIL", "noreply@mantis.com"),
		},
		Extraction: ExtractionConfig{
			ScraperURL: getEnv("SCRAPER_URL", "http://localhost:8500"),
			MaxChars:   getEnvAsInt("SCRAPER_MAX_CHARS", 15000),
		},
		Refresh: RefreshConfig{
			IntervalHours:        getEnvAsInt("REFRESH_INTERVAL_HOURS", 6),
			OTPExpirationMinutes: getEnvAsInt("OTP_EXPIRATION_MINUTES", 10),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks for required variables
func validate(cfg *Config) error {
	if cfg.DB.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Auth.JWTSecret == "" && cfg.Server.Env != "test" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Email.ResendAPIKey == "" && cfg.Server.Env != "test" {
		// Signup and deletion flows cannot deliver OTP codes without it
		fmt.Println("Warning: RESEND_API_KEY is missing. OTP emails will fail.")
	}
	if cfg.Refresh.IntervalHours <= 0 {
		cfg.Refresh.IntervalHours = 6
	}
	if cfg.Refresh.OTPExpirationMinutes <= 0 {
		cfg.Refresh.OTPExpirationMinutes = 10
	}
	return nil
}

// Helper to get env var with default
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func sanitizeCredential(value string) string {
	trimmed := strings.TrimSpace(value)
	return strings.Trim(trimmed, "\"")
}

// Helper to get env var as int
func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}
