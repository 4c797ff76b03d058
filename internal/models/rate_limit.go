package models

import (
	"time"

	"gorm.io/gorm"
)

// RateLimitEntry is one pseudonymized submission attempt. Rows are append
// only; timing heuristics read the two most recent rows per identity.
type RateLimitEntry struct {
	ID           uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	IdentityHash string         `gorm:"size:128;index" json:"identity_hash"` // HMAC-SHA512 of the client identity
	Submitted    bool           `gorm:"default:false;index" json:"submitted"` // Whether this was a confirmed human submission
	CreatedAt    time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// BanEntry marks a pseudonymized identity as temporarily banned
type BanEntry struct {
	ID           uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	IdentityHash string         `gorm:"size:128;index" json:"identity_hash"`
	BlockedUntil time.Time      `gorm:"index" json:"blocked_until"` // When the ban expires
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}
