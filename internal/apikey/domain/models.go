// Package domain contains hashed API credentials scoped to an organization.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// APIKey stores only the hash; the plaintext is shown once at creation.
type APIKey struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	OrgID     snowflake.ID `gorm:"not null;index"`
	UserID    snowflake.ID `gorm:"not null"`
	Name      string       `gorm:"type:text;not null"`
	KeyHash   string       `gorm:"column:key_hash;type:text;not null;uniqueIndex:ux_api_keys_key_hash"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	RevokedAt *time.Time   `gorm:"column:revoked_at"`
}

// TableName sets the database table name.
func (APIKey) TableName() string { return "api_keys" }

// Revoked reports whether the key has been revoked as of now.
func (k *APIKey) Revoked(now time.Time) bool {
	return k.RevokedAt != nil && !k.RevokedAt.After(now)
}
