/**
 * @description
 * User database model.
 * Maps to the 'users' table in PostgreSQL.
 *
 * @dependencies
 * - gorm.io/gorm
 * - github.com/google/uuid
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents a registered account in the system
type User struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Email          string    `gorm:"uniqueIndex;not null" json:"email"`
	HashedPassword string    `gorm:"column:hashed_password;not null" json:"-"`
	Name           string    `json:"name"`
	IsActive       bool      `gorm:"column:is_active;default:true" json:"is_active"`
	IsVerified     bool      `gorm:"column:is_verified;default:false" json:"is_verified"`

	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `gorm:"column:last_login" json:"last_login"`

	Products        []Product        `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	ProviderConfigs []ProviderConfig `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// TableName overrides the table name used by User to `users`
func (User) TableName() string {
	return "users"
}

// BeforeCreate ensures UUID is generated if not present
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return
}
