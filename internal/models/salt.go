package models

import (
	"time"

	"gorm.io/gorm"
)

// Salt is a secret used to pseudonymize client identities before storage.
// The most recently created row is the current salt; the one before it is
// kept so identities hashed just before a rotation still resolve.
type Salt struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	SaltID    string         `gorm:"size:36;uniqueIndex" json:"salt_id"` // Unique identifier for the salt
	Secret    []byte         `gorm:"type:bytea" json:"-"`                // 512 random bytes, never exposed
	CreatedAt time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}
