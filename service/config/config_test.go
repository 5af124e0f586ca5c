package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilcash/veil/service/chain"
)

func TestLoad_ValidConfig(t *testing.T) {
	t.Setenv("SOLANA_RPC_URLS", "https://api.mainnet-beta.solana.com, https://solana.publicnode.com")
	t.Setenv("ARBITRUM_RPC_URLS", "https://arb1.arbitrum.io/rpc")
	t.Setenv("DATABASE_URL", "postgres://localhost/veil")
	t.Setenv("NATS_URL", "nats://localhost:4222")

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, []string{
		"https://api.mainnet-beta.solana.com",
		"https://solana.publicnode.com",
	}, cfg.RPCEndpoints[chain.NetworkSolana])
	assert.Equal(t, []string{"https://arb1.arbitrum.io/rpc"}, cfg.RPCEndpoints[chain.NetworkArbitrum])
	assert.Empty(t, cfg.RPCEndpoints[chain.NetworkEthereum])
	assert.Equal(t, "postgres://localhost/veil", cfg.DatabaseURL)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, ":8080", cfg.ServerAddr)  // Default
	assert.Equal(t, ":9090", cfg.MetricsAddr) // Default
	assert.Equal(t, "info", cfg.LogLevel)     // Default
	assert.Equal(t, 3, cfg.RPCMaxAttempts)
	assert.Equal(t, 3*time.Second, cfg.RPCBaseDelay)
	assert.Equal(t, 30*time.Second, cfg.MonitorInterval)
}

func TestLoad_MissingSolanaEndpoints(t *testing.T) {
	t.Setenv("SOLANA_RPC_URLS", "")

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "SOLANA_RPC_URLS is required")
}

func TestLoad_ClampsMonitorInterval(t *testing.T) {
	t.Setenv("SOLANA_RPC_URLS", "https://api.mainnet-beta.solana.com")

	t.Setenv("MONITOR_INTERVAL_MS", "1000")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.MonitorInterval)

	t.Setenv("MONITOR_INTERVAL_MS", "900000")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, 300*time.Second, cfg.MonitorInterval)
}

func TestLoad_InvalidInterval(t *testing.T) {
	t.Setenv("SOLANA_RPC_URLS", "https://api.mainnet-beta.solana.com")
	t.Setenv("MONITOR_INTERVAL_MS", "fast")

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "invalid integer")
}

func TestLoad_InvalidBaseDelay(t *testing.T) {
	t.Setenv("SOLANA_RPC_URLS", "https://api.mainnet-beta.solana.com")
	t.Setenv("RPC_BASE_DELAY", "soon")

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoad_DropsBlankEndpoints(t *testing.T) {
	t.Setenv("SOLANA_RPC_URLS", "https://api.mainnet-beta.solana.com,, ,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://api.mainnet-beta.solana.com"}, cfg.RPCEndpoints[chain.NetworkSolana])
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			RPCEndpoints: map[chain.Network][]string{
				chain.NetworkSolana: {"https://api.mainnet-beta.solana.com"},
			},
			RPCMaxAttempts:  3,
			RPCBaseDelay:    3 * time.Second,
			MonitorInterval: 30 * time.Second,
		}
	}

	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.RPCEndpoints = nil
	assert.ErrorContains(t, cfg.Validate(), "Solana RPC endpoint is required")

	cfg = valid()
	cfg.RPCEndpoints[chain.NetworkSolana] = []string{"ftp://bad"}
	assert.ErrorContains(t, cfg.Validate(), "must be an http(s) URL")

	cfg = valid()
	cfg.RPCMaxAttempts = 0
	assert.ErrorContains(t, cfg.Validate(), "RPCMaxAttempts")

	cfg = valid()
	cfg.MonitorInterval = time.Second
	assert.ErrorContains(t, cfg.Validate(), "MonitorInterval")
}
