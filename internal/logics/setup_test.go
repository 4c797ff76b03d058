package logics

import (
	"testing"

	"formshield-server/configs"
	"formshield-server/internal/repositories"

	"go.uber.org/zap"
)

// newTestEnv resets global config, logger and the database to a known state
func newTestEnv(t *testing.T) {
	t.Helper()

	configs.Logger = zap.NewNop()
	configs.Configs = configs.Tconfigs{}

	if err := repositories.InitTest(); err != nil {
		t.Fatalf("failed to init test database: %v", err)
	}
}
