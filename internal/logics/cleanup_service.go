package logics

import (
	"context"
	"time"

	"formshield-server/configs"

	"go.uber.org/zap"
)

// CleanupService runs the periodic background jobs: pool refills on two
// schedules plus the retention sweeps. All jobs are idempotent, so
// overlapping invocations are harmless.
type CleanupService struct {
	stop chan struct{}
}

// NewCleanupService creates a new CleanupService instance
func NewCleanupService() *CleanupService {
	return &CleanupService{stop: make(chan struct{})}
}

// Start launches the background schedules
func (s *CleanupService) Start() {
	// Operational pool refill; the daily one below is the safety net
	go s.every(15*time.Minute, "pool_refill", refillPool)
	go s.every(24*time.Hour, "pool_refill_daily", refillPool)

	go s.every(time.Hour, "session_sweep", ChallengeSvc.SweepSessions)

	go s.every(24*time.Hour, "retention_sweep", func() {
		RateLimitSvc.Sweep()
		SaltSvc.Sweep()
	})

	configs.Logger.Info("Background cleanup jobs started")
}

// Stop ends all schedules
func (s *CleanupService) Stop() {
	close(s.stop)
}

// refillPool tops up the image pool. Only the image variant renders ahead
// of time; other variants leave the pool alone.
func refillPool() {
	if configs.Configs.Antispam.Challenge.ActiveKind() != configs.ChallengeKindImage {
		return
	}
	if err := PoolSvc.Fill(context.Background()); err != nil {
		configs.Logger.Error("Pool refill failed", zap.Error(err))
	}
}

func (s *CleanupService) every(interval time.Duration, name string, job func()) {
	// Run once at start so a fresh deployment has a warm pool
	job()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			job()
		case <-s.stop:
			configs.Logger.Debug("Cleanup job stopped", zap.String("job", name))
			return
		}
	}
}

// Global instance of CleanupService
var CleanupSvc = NewCleanupService()
