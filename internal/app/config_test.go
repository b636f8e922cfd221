package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	_ "github.com/sweethome/ledger/internal/testing/guard"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, "development", cfg.AppEnv)
	require.False(t, cfg.IsProduction())
	require.Equal(t, 5*time.Minute, cfg.OpenChargesCacheTTL)
	require.Equal(t, 15*time.Second, cfg.CustomerLockTTL)
	require.Equal(t, "Sweet Home", cfg.StoreName)
}

func TestLoadConfigRejectsBadCutoff(t *testing.T) {
	t.Setenv("LEGACY_CUTOFF", "01/01/2025")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLegacyCutoffDate(t *testing.T) {
	t.Setenv("LEGACY_CUTOFF", "2025-06-15")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), cfg.LegacyCutoffDate())
}

func TestInTestMode(t *testing.T) {
	// The guard package sets the flag before this test runs.
	RefreshTestMode()
	require.True(t, InTestMode())
}
