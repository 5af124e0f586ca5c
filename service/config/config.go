package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/veilcash/veil/service/chain"
	"github.com/veilcash/veil/service/monitor"
)

// Config holds all application configuration loaded from environment
// variables. Required fields are validated at startup for fail-fast
// behavior.
type Config struct {
	// Server configuration
	ServerAddr  string
	MetricsAddr string
	LogLevel    string

	// Database configuration. Empty means in-memory storage.
	DatabaseURL string

	// NATS configuration. Empty disables event publishing.
	NATSURL string

	// RPC endpoint pools, one per network. Solana is required; EVM
	// networks without endpoints are simply not served.
	RPCEndpoints map[chain.Network][]string

	// Retry configuration shared by all resilient clients.
	RPCMaxAttempts int
	RPCBaseDelay   time.Duration

	// MonitorInterval is the balance polling interval, clamped to the
	// monitor's supported bounds.
	MonitorInterval time.Duration

	// CircuitAssetsPath locates the proving keys the privacy SDK loads.
	CircuitAssetsPath string
}

// endpoint environment variables, one comma-separated list per network.
var endpointEnvVars = map[chain.Network]string{
	chain.NetworkSolana:    "SOLANA_RPC_URLS",
	chain.NetworkEthereum:  "ETHEREUM_RPC_URLS",
	chain.NetworkArbitrum:  "ARBITRUM_RPC_URLS",
	chain.NetworkAvalanche: "AVALANCHE_RPC_URLS",
}

// Load reads configuration from environment variables and validates all
// required fields. Returns an error if any required configuration is
// missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.MetricsAddr = getEnvOrDefault("METRICS_ADDR", ":9090")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.NATSURL = os.Getenv("NATS_URL")

	cfg.RPCEndpoints = make(map[chain.Network][]string)
	for _, network := range chain.Networks() {
		urls := splitList(os.Getenv(endpointEnvVars[network]))
		if len(urls) > 0 {
			cfg.RPCEndpoints[network] = urls
		}
	}
	if len(cfg.RPCEndpoints[chain.NetworkSolana]) == 0 {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URLS is required"))
	}

	maxAttempts, err := parseInt("RPC_MAX_ATTEMPTS", 3)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.RPCMaxAttempts = maxAttempts
	}

	baseDelay, err := parseDuration("RPC_BASE_DELAY", "3s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.RPCBaseDelay = baseDelay
	}

	intervalMS, err := parseInt("MONITOR_INTERVAL_MS", 30_000)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.MonitorInterval = monitor.ClampInterval(time.Duration(intervalMS) * time.Millisecond)
	}

	cfg.CircuitAssetsPath = getEnvOrDefault("CIRCUIT_ASSETS_PATH", "./circuits")

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for daemon initialization where misconfiguration should halt
// startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid. Useful for testing
// configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if len(c.RPCEndpoints[chain.NetworkSolana]) == 0 {
		errs = append(errs, fmt.Errorf("at least one Solana RPC endpoint is required"))
	}
	for network, urls := range c.RPCEndpoints {
		for _, u := range urls {
			if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
				errs = append(errs, fmt.Errorf("%s endpoint %q must be an http(s) URL", network, u))
			}
		}
	}

	if c.RPCMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("RPCMaxAttempts must be at least 1"))
	}
	if c.RPCBaseDelay < 0 {
		errs = append(errs, fmt.Errorf("RPCBaseDelay cannot be negative"))
	}
	if c.MonitorInterval < monitor.MinInterval || c.MonitorInterval > monitor.MaxInterval {
		errs = append(errs, fmt.Errorf("MonitorInterval must be within [%v, %v]", monitor.MinInterval, monitor.MaxInterval))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}
	return nil
}

// getEnvOrDefault returns the environment variable value or a default if
// not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// splitList parses a comma-separated list, dropping blanks.
func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseDuration parses a duration from an environment variable or uses a
// default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a
// default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}
