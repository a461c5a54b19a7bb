/**
 * @description
 * Provider configuration database model.
 * Maps to the 'provider_configs' table in PostgreSQL.
 * Holds the per-user LLM credentials used for extraction. Exactly one row per
 * user (unique index); saving a config replaces the previous one.
 *
 * Credentials are strictly per-user: the tracker resolves only the requesting
 * user's row, never any table-wide "first configured" fallback.
 *
 * @dependencies
 * - gorm.io/gorm
 * - github.com/google/uuid
 */

package models

import (
	"time"

	"github.com/google/uuid"
)

// ProviderConfig represents one user's LLM provider credentials and model selection
type ProviderConfig struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uix_provider_configs_user" json:"user_id"`
	ProviderName string    `gorm:"column:provider_name;size:50;not null" json:"provider_name"`
	APIKey       string    `gorm:"column:api_key;size:255;not null" json:"-"`
	ModelName    string    `gorm:"column:model_name;size:100;not null" json:"model_name"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName overrides the table name used by ProviderConfig to `provider_configs`
func (ProviderConfig) TableName() string {
	return "provider_configs"
}
