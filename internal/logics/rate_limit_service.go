package logics

import (
	"context"
	"time"

	"formshield-server/configs"
	"formshield-server/internal/models"
	"formshield-server/internal/repositories"

	"go.uber.org/zap"
)

// ledgerRetention is how long ledger rows, bans and decision logs are kept
const ledgerRetention = 3 * 7 * 24 * time.Hour

// RateLimitService decides per request whether a client identity is banned
// or must be banned, based on inter-attempt timing and retry counts. All
// infrastructure failures on the admission path fail open: a database outage
// must never block legitimate submitters.
type RateLimitService struct {
	salts   *SaltService
	counter RetryCounter
}

// NewRateLimitService creates a new RateLimitService instance
func NewRateLimitService(salts *SaltService, counter RetryCounter) *RateLimitService {
	return &RateLimitService{salts: salts, counter: counter}
}

// Check runs the admission state machine for one submission attempt.
// Returns false with a reason when the attempt must be rejected.
func (s *RateLimitService) Check(ctx context.Context, ip string) (bool, string) {
	hashCurrent, hashPrevious, err := s.salts.IdentityHashes(ip)
	if err != nil {
		// Identity cannot be pseudonymized; fail open
		configs.Logger.Error("Rate limit check skipped, identity not pseudonymizable",
			zap.Error(err))
		return true, ""
	}

	if s.isBanned(hashCurrent, hashPrevious) {
		return false, "Your address is temporarily banned from submitting."
	}

	cfg := configs.Configs.Antispam.RateLimit

	var entries []models.RateLimitEntry
	err = repositories.DBS.Postgres.
		Where("identity_hash IN ?", []string{hashCurrent, hashPrevious}).
		Order("created_at DESC").
		Limit(2).
		Find(&entries).Error
	if err != nil {
		configs.Logger.Error("Rate limit check skipped, ledger unreachable", zap.Error(err))
		return true, ""
	}

	s.record(hashCurrent)

	// First- or second-seen identity: no timing baseline yet
	if len(entries) < 2 {
		return true, ""
	}

	diff := entries[0].CreatedAt.Sub(entries[1].CreatedAt)
	if diff > cfg.MinInterval() {
		// Human pacing
		return true, ""
	}

	count, err := s.counter.Incr(ctx, "retry:"+hashCurrent, cfg.RetryPeriod())
	if err != nil {
		// Fall back to counting ledger rows. Not atomic under concurrency,
		// but better than losing the ban heuristic entirely.
		configs.Logger.Warn("Retry counter unavailable, counting ledger rows", zap.Error(err))
		count = s.countFailedEntries(hashCurrent, hashPrevious, cfg.RetryPeriod())
	}

	if count >= int64(cfg.RetryLimit()) {
		s.ban(hashCurrent, cfg.BlockTime())
		return false, "Your address is temporarily banned from submitting."
	}

	return false, "Submissions are arriving too fast. Please wait a moment."
}

// NoteSuccess records a confirmed human submission and prunes the failed
// rows it supersedes, so the ledger does not grow on legitimate traffic.
func (s *RateLimitService) NoteSuccess(ctx context.Context, ip string) {
	hashCurrent, hashPrevious, err := s.salts.IdentityHashes(ip)
	if err != nil {
		configs.Logger.Error("Could not record successful submission", zap.Error(err))
		return
	}

	entry := &models.RateLimitEntry{IdentityHash: hashCurrent, Submitted: true}
	if err := repositories.DBS.Postgres.Create(entry).Error; err != nil {
		configs.Logger.Error("Failed to write submitted ledger entry", zap.Error(err))
		return
	}

	err = repositories.DBS.Postgres.
		Where("identity_hash IN ? AND submitted = ? AND id <> ?",
			[]string{hashCurrent, hashPrevious}, false, entry.ID).
		Delete(&models.RateLimitEntry{}).Error
	if err != nil {
		configs.Logger.Error("Failed to prune failed ledger entries", zap.Error(err))
	}

	if err := s.counter.Reset(ctx, "retry:"+hashCurrent); err != nil {
		configs.Logger.Warn("Failed to reset retry counter", zap.Error(err))
	}
}

// Sweep removes ledger rows, bans and decision logs past the retention period
func (s *RateLimitService) Sweep() {
	cutoff := time.Now().Add(-ledgerRetention)

	for _, target := range []interface{}{
		&models.RateLimitEntry{},
		&models.BanEntry{},
		&models.DecisionLog{},
	} {
		result := repositories.DBS.Postgres.
			Unscoped().
			Where("created_at < ?", cutoff).
			Delete(target)
		if result.Error != nil {
			configs.Logger.Error("Retention sweep failed", zap.Error(result.Error))
		}
	}
}

func (s *RateLimitService) isBanned(hashes ...string) bool {
	var count int64
	err := repositories.DBS.Postgres.Model(&models.BanEntry{}).
		Where("identity_hash IN ? AND blocked_until > ?", hashes, time.Now()).
		Count(&count).Error
	if err != nil {
		configs.Logger.Error("Ban lookup failed, failing open", zap.Error(err))
		return false
	}
	return count > 0
}

func (s *RateLimitService) record(identityHash string) {
	entry := &models.RateLimitEntry{IdentityHash: identityHash}
	if err := repositories.DBS.Postgres.Create(entry).Error; err != nil {
		configs.Logger.Error("Failed to write ledger entry", zap.Error(err))
	}
}

func (s *RateLimitService) countFailedEntries(hashCurrent, hashPrevious string, window time.Duration) int64 {
	var count int64
	err := repositories.DBS.Postgres.Model(&models.RateLimitEntry{}).
		Where("identity_hash IN ? AND submitted = ? AND created_at > ?",
			[]string{hashCurrent, hashPrevious}, false, time.Now().Add(-window)).
		Count(&count).Error
	if err != nil {
		configs.Logger.Error("Failed entry count unavailable", zap.Error(err))
		return 0
	}
	return count
}

func (s *RateLimitService) ban(identityHash string, blockTime time.Duration) {
	entry := &models.BanEntry{
		IdentityHash: identityHash,
		BlockedUntil: time.Now().Add(blockTime),
	}
	if err := repositories.DBS.Postgres.Create(entry).Error; err != nil {
		configs.Logger.Error("Failed to create ban entry", zap.Error(err))
		return
	}

	configs.Logger.Warn("Identity banned for repeated fast submissions",
		zap.Time("blocked_until", entry.BlockedUntil))
}

// Global instance of RateLimitService
var RateLimitSvc = NewRateLimitService(SaltSvc, NewRedisRetryCounter())
