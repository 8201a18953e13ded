package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 4, cfg.Aggregator.Concurrency)
	assert.Equal(t, 10*time.Second, cfg.Aggregator.Timeout)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.True(t, cfg.Rates.Static["USDT"].Equal(decimal.NewFromInt(1600)))
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("AGGREGATOR_CONCURRENCY", "3")
	t.Setenv("AGGREGATOR_TIMEOUT", "2s")
	t.Setenv("RATES_STATIC", "usdt=1500.5, usdc = 1499")
	t.Setenv("CACHE_BACKEND", "redis")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Aggregator.Concurrency)
	assert.Equal(t, 2*time.Second, cfg.Aggregator.Timeout)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.True(t, cfg.Rates.Static["USDT"].Equal(decimal.RequireFromString("1500.5")))
	assert.True(t, cfg.Rates.Static["USDC"].Equal(decimal.NewFromInt(1499)))
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("AGGREGATOR_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration for AGGREGATOR_TIMEOUT")
}

func TestLoad_InvalidRate(t *testing.T) {
	t.Setenv("RATES_STATIC", "USDT")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid rate for RATES_STATIC")
}

func TestGetEnvInt_IgnoresGarbage(t *testing.T) {
	t.Setenv("SOME_INT", "many")
	assert.Equal(t, 7, getEnvInt("SOME_INT", 7))
}
