/**
 * @description
 * Tracked product database model.
 * Maps to the 'products' table in PostgreSQL.
 * Holds the latest known snapshot for one (user, url) pair; the observation
 * series lives in 'price_history'.
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

// StockStatus is the availability state reported by extraction
type StockStatus string

const (
	StockStatusInStock    StockStatus = "In Stock"
	StockStatusOutOfStock StockStatus = "Out of Stock"
	StockStatusUnknown    StockStatus = "Unknown"
)

// NormalizeStockStatus clamps arbitrary adapter output to the known enum
func NormalizeStockStatus(s string) StockStatus {
	switch StockStatus(s) {
	case StockStatusInStock, StockStatusOutOfStock:
		return StockStatus(s)
	default:
		return StockStatusUnknown
	}
}

// Product represents one tracked URL for one user.
// The same URL may be tracked independently by different users, but not twice
// by the same user (unique index on user_id + url).
type Product struct {
	ID     uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uix_products_user_url,priority:1;index" json:"user_id"`
	URL    string    `gorm:"not null;uniqueIndex:uix_products_user_url,priority:2" json:"url"`

	Title       string      `json:"title"`
	Price       float64     `gorm:"column:price" json:"price"`
	Currency    string      `gorm:"column:currency" json:"currency"`
	StockStatus StockStatus `gorm:"column:stock_status;default:Unknown" json:"stock_status"`
	Domain      string      `gorm:"column:domain" json:"domain"`

	LastChecked *time.Time `gorm:"column:last_checked" json:"last_checked"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`

	PriceHistory []PriceHistory `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// TableName overrides the table name used by Product to `products`
func (Product) TableName() string {
	return "products"
}
