//go:build integration

package testutil

import (
	"testing"

	"fleetbook/pkg/client"
	"fleetbook/pkg/config"
	"fleetbook/pkg/logger"
)

// NewConfig returns a validated config for backend with no connections
// opened yet.
func NewConfig(t *testing.T, store, lockBackend string) *config.Config {
	t.Helper()

	cfg := config.FromEnv()
	cfg.StoreBackend = store
	cfg.LockBackend = lockBackend
	cfg.MongoDatabaseName = DatabaseName
	cfg.Log = logger.Discard()
	cfg.Client = client.NewClient()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("invalid test config: %v", err)
	}
	t.Cleanup(cfg.GracefulShutdown)
	return cfg
}
