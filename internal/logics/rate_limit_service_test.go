package logics

import (
	"context"
	"testing"
	"time"

	"formshield-server/configs"
	"formshield-server/internal/models"
	"formshield-server/internal/repositories"
)

const testIP = "198.51.100.23"

func newRateLimitService(t *testing.T) *RateLimitService {
	t.Helper()
	return NewRateLimitService(NewSaltService(), NewMemoryRetryCounter())
}

func seedLedger(t *testing.T, svc *RateLimitService, ip string, ages ...time.Duration) {
	t.Helper()

	hashCurrent, _, err := svc.salts.IdentityHashes(ip)
	if err != nil {
		t.Fatalf("failed to hash identity: %v", err)
	}
	for _, age := range ages {
		entry := &models.RateLimitEntry{
			IdentityHash: hashCurrent,
			CreatedAt:    time.Now().Add(-age),
		}
		if err := repositories.DBS.Postgres.Create(entry).Error; err != nil {
			t.Fatalf("failed to seed ledger entry: %v", err)
		}
	}
}

func TestCheckAcceptsFirstSeenIdentity(t *testing.T) {
	newTestEnv(t)
	svc := newRateLimitService(t)

	allowed, _ := svc.Check(context.Background(), testIP)
	if !allowed {
		t.Error("first-seen identity should be accepted")
	}

	var count int64
	repositories.DBS.Postgres.Model(&models.RateLimitEntry{}).Count(&count)
	if count != 1 {
		t.Errorf("ledger entry count = %d, want 1", count)
	}
}

func TestCheckTiming(t *testing.T) {
	tests := []struct {
		name    string
		gap     time.Duration
		allowed bool
	}{
		{"entries 10s apart are too fast", 10 * time.Second, false},
		{"entries 70s apart pass as human pacing", 70 * time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			newTestEnv(t)
			svc := newRateLimitService(t)

			seedLedger(t, svc, testIP, tt.gap+time.Minute, time.Minute)

			allowed, _ := svc.Check(context.Background(), testIP)
			if allowed != tt.allowed {
				t.Errorf("Check() allowed = %v, want %v", allowed, tt.allowed)
			}
		})
	}
}

func TestCheckAutoBan(t *testing.T) {
	newTestEnv(t)
	svc := newRateLimitService(t)

	seedLedger(t, svc, testIP, 10*time.Second, 5*time.Second)

	// Three fast failures within the retry period trip the ban
	for i := 0; i < 3; i++ {
		allowed, _ := svc.Check(context.Background(), testIP)
		if allowed {
			t.Fatalf("fast attempt %d should be rejected", i+1)
		}
	}

	var bans int64
	repositories.DBS.Postgres.Model(&models.BanEntry{}).Count(&bans)
	if bans != 1 {
		t.Fatalf("ban count = %d, want 1", bans)
	}

	// Banned regardless of timing from here on
	seedLedger(t, svc, testIP, 10*time.Minute)
	allowed, reason := svc.Check(context.Background(), testIP)
	if allowed {
		t.Error("banned identity must be rejected unconditionally")
	}
	if reason == "" {
		t.Error("rejection must carry a reason")
	}
}

func TestExpiredBanNoLongerBlocks(t *testing.T) {
	newTestEnv(t)
	svc := newRateLimitService(t)

	hashCurrent, _, err := svc.salts.IdentityHashes(testIP)
	if err != nil {
		t.Fatalf("failed to hash identity: %v", err)
	}

	ban := &models.BanEntry{
		IdentityHash: hashCurrent,
		BlockedUntil: time.Now().Add(-time.Second),
	}
	if err := repositories.DBS.Postgres.Create(ban).Error; err != nil {
		t.Fatalf("failed to seed ban: %v", err)
	}

	allowed, _ := svc.Check(context.Background(), testIP)
	if !allowed {
		t.Error("an expired ban must not block")
	}
}

func TestBanMatchesPreviousSaltHash(t *testing.T) {
	newTestEnv(t)
	svc := newRateLimitService(t)

	// Force a rotation so a previous salt exists
	seedSalt(t, 31*24*time.Hour)
	if _, err := svc.salts.Current(); err != nil {
		t.Fatalf("failed to rotate salt: %v", err)
	}

	previous, err := svc.salts.Previous()
	if err != nil || previous == nil {
		t.Fatalf("expected a previous salt, err=%v", err)
	}

	// Ban recorded under the pre-rotation hash must still match
	ban := &models.BanEntry{
		IdentityHash: svc.salts.Pseudonymize(testIP, previous),
		BlockedUntil: time.Now().Add(time.Hour),
	}
	if err := repositories.DBS.Postgres.Create(ban).Error; err != nil {
		t.Fatalf("failed to seed ban: %v", err)
	}

	allowed, _ := svc.Check(context.Background(), testIP)
	if allowed {
		t.Error("ban under the previous salt hash must still reject")
	}
}

func TestNoteSuccessPrunesFailedEntries(t *testing.T) {
	newTestEnv(t)
	svc := newRateLimitService(t)

	seedLedger(t, svc, testIP, 3*time.Minute, 2*time.Minute, time.Minute)

	svc.NoteSuccess(context.Background(), testIP)

	var failed int64
	repositories.DBS.Postgres.Model(&models.RateLimitEntry{}).
		Where("submitted = ?", false).
		Count(&failed)
	if failed != 0 {
		t.Errorf("failed entry count after success = %d, want 0", failed)
	}

	var submitted int64
	repositories.DBS.Postgres.Model(&models.RateLimitEntry{}).
		Where("submitted = ?", true).
		Count(&submitted)
	if submitted != 1 {
		t.Errorf("submitted entry count = %d, want 1", submitted)
	}
}

func TestSweepRemovesOldRows(t *testing.T) {
	newTestEnv(t)
	svc := newRateLimitService(t)

	old := time.Now().Add(-4 * 7 * 24 * time.Hour)
	repositories.DBS.Postgres.Create(&models.RateLimitEntry{IdentityHash: "aged", CreatedAt: old})
	repositories.DBS.Postgres.Create(&models.BanEntry{IdentityHash: "aged", BlockedUntil: old, CreatedAt: old})
	repositories.DBS.Postgres.Create(&models.RateLimitEntry{IdentityHash: "fresh"})

	svc.Sweep()

	var entries, bans int64
	repositories.DBS.Postgres.Model(&models.RateLimitEntry{}).Count(&entries)
	repositories.DBS.Postgres.Model(&models.BanEntry{}).Count(&bans)
	if entries != 1 {
		t.Errorf("ledger count after sweep = %d, want 1", entries)
	}
	if bans != 0 {
		t.Errorf("ban count after sweep = %d, want 0", bans)
	}
}

func TestCheckFailsOpenWithDefaults(t *testing.T) {
	newTestEnv(t)
	svc := newRateLimitService(t)

	// Zero-valued thresholds fall back to documented defaults
	cfg := configs.Configs.Antispam.RateLimit
	if cfg.MinInterval() != 60*time.Second {
		t.Errorf("default min interval = %v, want 60s", cfg.MinInterval())
	}
	if cfg.RetryPeriod() != 300*time.Second {
		t.Errorf("default retry period = %v, want 300s", cfg.RetryPeriod())
	}
	if cfg.RetryLimit() != 3 {
		t.Errorf("default retry limit = %d, want 3", cfg.RetryLimit())
	}
	if cfg.BlockTime() != time.Hour {
		t.Errorf("default block time = %v, want 1h", cfg.BlockTime())
	}

	allowed, _ := svc.Check(context.Background(), testIP)
	if !allowed {
		t.Error("first attempt under default config should be accepted")
	}
}
