package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DecisionLog records the outcome of one abuse decision for auditing
type DecisionLog struct {
	ID           uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	IdentityHash string         `gorm:"size:128;index" json:"identity_hash"`
	Spam         bool           `gorm:"index" json:"spam"`
	Details      datatypes.JSON `gorm:"type:jsonb" json:"details"` // Per-check votes and messages
	CreatedAt    time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}
