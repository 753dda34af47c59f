package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("PLATFORM_FEE_PERCENT", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "PLN", cfg.DefaultCurrency)
	assert.Equal(t, "0.02", cfg.PlatformFeePercent.String())
	assert.Equal(t, 5*time.Minute, cfg.CheckoutIdempotencyWindow)
	assert.Equal(t, 5*time.Second, cfg.LockTimeout)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092 ,")
	t.Setenv("PLATFORM_FEE_PERCENT", "0.05")
	t.Setenv("LOCK_TIMEOUT_MS", "250")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "0.05", cfg.PlatformFeePercent.String())
	assert.Equal(t, 250*time.Millisecond, cfg.LockTimeout)
}

func TestLoad_BadFee(t *testing.T) {
	t.Setenv("PLATFORM_FEE_PERCENT", "two percent")
	_, err := Load()
	assert.Error(t, err)
}
