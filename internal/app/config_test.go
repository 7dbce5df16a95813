package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PG_DSN", "postgres://localhost/fulfillment")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 10*time.Second, cfg.BillingComputeTimeout)
	require.Equal(t, 4, cfg.BillingBatchConcurrency)
	require.Equal(t, "0 3 * * *", cfg.BillingRecomputeCron)
	require.Equal(t, 5000, cfg.SyncMaxOrders)
	require.Equal(t, 50, cfg.SyncPageLimit)
	require.Equal(t, 300, cfg.SyncUpsertBatch)
	require.Equal(t, 10*time.Minute, cfg.OAuthStateTTL)
	require.Equal(t, 72*time.Hour, cfg.IdempotencyRetention)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsNonPositiveLimits(t *testing.T) {
	t.Setenv("SYNC_CONCURRENCY", "0")
	_, err := LoadConfig()
	require.ErrorContains(t, err, "SYNC_CONCURRENCY")
}

func TestLoadConfigRejectsLockShorterThanCompute(t *testing.T) {
	t.Setenv("BILLING_COMPUTE_TIMEOUT", "20s")
	t.Setenv("BILLING_LOCK_TTL", "5s")
	_, err := LoadConfig()
	require.ErrorContains(t, err, "BILLING_LOCK_TTL")
}

func TestInTestModeRefresh(t *testing.T) {
	t.Setenv("FULFILLMENT_TEST_MODE", "1")
	RefreshTestMode()
	require.True(t, InTestMode())
	t.Setenv(TestModeEnv, "false")
	RefreshTestMode()
	require.False(t, InTestMode())
	t.Setenv(TestModeEnv, "true")
	RefreshTestMode()
	require.True(t, InTestMode())
}
