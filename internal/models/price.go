/**
 * @description
 * Price History database model.
 * Maps to the 'price_history' table in PostgreSQL.
 * Append-only: one row per successful extraction, never updated, deleted only
 * by cascade when the parent product or user is removed.
 *
 * @dependencies
 * - gorm.io/gorm
 */

package models

import (
	"time"
)

// PriceHistory represents a single immutable price observation for a product
type PriceHistory struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID uint64    `gorm:"column:product_id;not null;index:idx_price_history_product_time" json:"product_id"`
	Price     float64   `gorm:"column:price;not null" json:"price"`
	Currency  string    `gorm:"column:currency;not null" json:"currency"`
	Timestamp time.Time `gorm:"column:timestamp;not null;index:idx_price_history_product_time" json:"timestamp"`
}

// TableName overrides the table name used by PriceHistory to `price_history`
func (PriceHistory) TableName() string {
	return "price_history"
}
