/**
 * @description
 * Provider Service — per-user LLM credential management.
 * Each user owns at most one ProviderConfig row; saving replaces it. Reads
 * and writes are always filtered by the owning user id.
 *
 * @dependencies
 * - gorm.io/gorm
 * - backend/internal/integrations/llm
 */

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mantis-project/backend/internal/integrations/llm"
	"github.com/mantis-project/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProviderProbe covers the provider API calls the service proxies for the UI
type ProviderProbe interface {
	ListModels(ctx context.Context, providerName, apiKey string) ([]string, error)
	TestConnection(ctx context.Context, creds llm.Credentials) error
}

// ProviderService manages provider_configs rows
type ProviderService struct {
	db    *gorm.DB
	probe ProviderProbe
}

// NewProviderService creates a new ProviderService
func NewProviderService(db *gorm.DB, probe ProviderProbe) *ProviderService {
	return &ProviderService{
		db:    db,
		probe: probe,
	}
}

// ListAvailable returns the supported provider names
func (s *ProviderService) ListAvailable() []string {
	return llm.AvailableProviders()
}

// GetConfig returns the user's provider config, or nil when none is saved
func (s *ProviderService) GetConfig(ctx context.Context, userID uuid.UUID) (*models.ProviderConfig, error) {
	var cfg models.ProviderConfig
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveConfig upserts the user's single provider config row
func (s *ProviderService) SaveConfig(ctx context.Context, userID uuid.UUID, providerName, apiKey, modelName string) (*models.ProviderConfig, error) {
	providerName = strings.ToLower(strings.TrimSpace(providerName))
	if _, err := llm.LookupProvider(providerName); err != nil {
		return nil, err
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if strings.TrimSpace(modelName) == "" {
		return nil, fmt.Errorf("model name is required")
	}

	cfg := models.ProviderConfig{
		UserID:       userID,
		ProviderName: providerName,
		APIKey:       strings.TrimSpace(apiKey),
		ModelName:    strings.TrimSpace(modelName),
	}

	// One config per user: conflict on the user id replaces the previous row
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"provider_name",
			"api_key",
			"model_name",
			"updated_at",
		}),
	}).Create(&cfg).Error
	if err != nil {
		return nil, err
	}

	return s.GetConfig(ctx, userID)
}

// ListModels proxies the provider's model listing with the supplied key
func (s *ProviderService) ListModels(ctx context.Context, providerName, apiKey string) ([]string, error) {
	return s.probe.ListModels(ctx, strings.ToLower(strings.TrimSpace(providerName)), apiKey)
}

// TestConnection verifies the supplied credentials against the provider API
func (s *ProviderService) TestConnection(ctx context.Context, providerName, apiKey, modelName string) error {
	return s.probe.TestConnection(ctx, llm.Credentials{
		Provider: strings.ToLower(strings.TrimSpace(providerName)),
		APIKey:   apiKey,
		Model:    modelName,
	})
}
