/**
 * @description
 * Schema migration helper.
 * Keeps the table set in one place so cmd/api and tests migrate identically.
 *
 * @dependencies
 * - gorm.io/gorm
 * - backend/internal/models
 */

package db

import (
	"github.com/mantis-project/backend/internal/models"
	"gorm.io/gorm"
)

// AutoMigrate creates or updates all application tables
func AutoMigrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&models.User{},
		&models.Product{},
		&models.PriceHistory{},
		&models.ProviderConfig{},
	)
}
