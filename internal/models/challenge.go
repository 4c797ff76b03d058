package models

import (
	"time"

	"gorm.io/gorm"
)

// ChallengeSession is one issued human-verification challenge. OpaqueHash is
// the externally visible token embedded in the form; Code is the expected
// answer. A session validates at most once.
type ChallengeSession struct {
	ID         uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	OpaqueHash string         `gorm:"size:64;uniqueIndex" json:"opaque_hash"`
	Kind       string         `gorm:"size:20" json:"kind"`         // "arithmetic" or "image"
	Code       string         `gorm:"size:100" json:"-"`           // Expected answer, plaintext
	Validated  bool           `gorm:"default:false" json:"validated"`
	CreatedAt  time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// PoolEntry is a pre-rendered image challenge waiting in the Redis FIFO.
// Entries older than an hour are discarded instead of served.
type PoolEntry struct {
	Code      string    `json:"code"`
	ImagePNG  []byte    `json:"image_png"`
	CreatedAt time.Time `json:"created_at"`
}
