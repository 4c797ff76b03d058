package logics

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"formshield-server/configs"
	"formshield-server/internal/models"
	"formshield-server/internal/repositories"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// saltSecretLength is the number of random bytes in a salt secret
	saltSecretLength = 512

	// saltRotateAfter is the age at which a salt stops being current
	saltRotateAfter = 30 * 24 * time.Hour

	// saltRetention is how long superseded salts are kept before the sweep
	// removes them
	saltRetention = 3 * 7 * 24 * time.Hour
)

// SaltService manages the rotating secret used to pseudonymize client
// identities. Exactly one current salt exists; the previous one is retained
// so hashes computed just before a rotation still match.
type SaltService struct {
	rand io.Reader
}

// NewSaltService creates a new SaltService instance
func NewSaltService() *SaltService {
	return &SaltService{rand: rand.Reader}
}

// Current returns the active salt, creating one if none exists or the newest
// one is older than the rotation period
func (s *SaltService) Current() (*models.Salt, error) {
	var salt models.Salt
	err := repositories.DBS.Postgres.
		Order("created_at DESC").
		First(&salt).Error

	if err == nil && time.Since(salt.CreatedAt) < saltRotateAfter {
		return &salt, nil
	}
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("%w: %v", ErrSaltUnavailable, err)
	}

	return s.create()
}

// Previous returns the second-most-recent salt, or nil if only one exists
func (s *SaltService) Previous() (*models.Salt, error) {
	var salts []models.Salt
	err := repositories.DBS.Postgres.
		Order("created_at DESC").
		Limit(2).
		Find(&salts).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSaltUnavailable, err)
	}

	if len(salts) < 2 {
		return nil, nil
	}
	return &salts[1], nil
}

// Pseudonymize computes the keyed hash of a raw client identity under the
// given salt. The result is stable for a fixed (identity, salt) pair.
func (s *SaltService) Pseudonymize(rawIdentity string, salt *models.Salt) string {
	mac := hmac.New(sha512.New, salt.Secret)
	mac.Write([]byte(rawIdentity))
	return hex.EncodeToString(mac.Sum(nil))
}

// IdentityHashes returns the identity hash under the current salt and, for
// matching, under the previous salt. The previous hash falls back to the
// current one when no previous salt exists.
func (s *SaltService) IdentityHashes(rawIdentity string) (string, string, error) {
	current, err := s.Current()
	if err != nil {
		return "", "", err
	}
	hashCurrent := s.Pseudonymize(rawIdentity, current)

	previous, err := s.Previous()
	if err != nil {
		return "", "", err
	}
	if previous == nil || previous.ID == current.ID {
		return hashCurrent, hashCurrent, nil
	}

	return hashCurrent, s.Pseudonymize(rawIdentity, previous), nil
}

// Sweep deletes superseded salts past the retention period. The two most
// recent salts are always kept regardless of age.
func (s *SaltService) Sweep() {
	var keep []models.Salt
	err := repositories.DBS.Postgres.
		Order("created_at DESC").
		Limit(2).
		Find(&keep).Error
	if err != nil {
		configs.Logger.Error("Salt sweep failed to load retained salts", zap.Error(err))
		return
	}

	keepIDs := make([]uint, 0, len(keep))
	for _, salt := range keep {
		keepIDs = append(keepIDs, salt.ID)
	}
	if len(keepIDs) == 0 {
		return
	}

	cutoff := time.Now().Add(-saltRetention)
	result := repositories.DBS.Postgres.
		Unscoped().
		Where("id NOT IN ? AND created_at < ?", keepIDs, cutoff).
		Delete(&models.Salt{})
	if result.Error != nil {
		configs.Logger.Error("Salt sweep failed", zap.Error(result.Error))
		return
	}

	if result.RowsAffected > 0 {
		configs.Logger.Info("Swept expired salts", zap.Int64("deleted", result.RowsAffected))
	}
}

func (s *SaltService) create() (*models.Salt, error) {
	secret := make([]byte, saltSecretLength)
	if _, err := io.ReadFull(s.rand, secret); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSaltUnavailable, err)
	}

	salt := &models.Salt{
		SaltID: uuid.NewString(),
		Secret: secret,
	}

	if err := repositories.DBS.Postgres.Create(salt).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSaltUnavailable, err)
	}

	configs.Logger.Info("Created new identity salt", zap.String("salt_id", salt.SaltID))
	return salt, nil
}

// Global instance of SaltService
var SaltSvc = NewSaltService()
