// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	DataDir           string // Base directory for all databases (always absolute)
	Port              int
	LogLevel          string
	DevMode           bool
	DefaultICHorizon  int    // Horizon applied to engines created without one
	RebuildSchedule   string // Cron schedule for the nightly engine rebuild
	PriceSyncSchedule string // Cron schedule for the price history sync
	PriceFeedURL      string // Base URL of the daily price feed; empty disables syncing
	PriceFeedAPIKey   string
}

// Load reads configuration from the environment, with a .env file as the
// optional source of defaults.
func Load() (*Config, error) {
	// .env is optional; environment variables win
	_ = godotenv.Load()

	dataDir := getEnv("FACTORLAB_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data dir %q: %w", dataDir, err)
	}

	port, err := getEnvInt("FACTORLAB_PORT", 8085)
	if err != nil {
		return nil, err
	}

	horizon, err := getEnvInt("FACTORLAB_IC_HORIZON", 1)
	if err != nil {
		return nil, err
	}
	if horizon <= 0 {
		return nil, fmt.Errorf("FACTORLAB_IC_HORIZON must be positive, got %d", horizon)
	}

	return &Config{
		DataDir:           absDataDir,
		Port:              port,
		LogLevel:          getEnv("FACTORLAB_LOG_LEVEL", "info"),
		DevMode:           getEnv("FACTORLAB_DEV_MODE", "") == "true",
		DefaultICHorizon:  horizon,
		RebuildSchedule:   getEnv("FACTORLAB_REBUILD_SCHEDULE", "0 0 2 * * *"),
		PriceSyncSchedule: getEnv("FACTORLAB_PRICE_SYNC_SCHEDULE", "0 30 1 * * *"),
		PriceFeedURL:      getEnv("FACTORLAB_PRICE_FEED_URL", ""),
		PriceFeedAPIKey:   getEnv("FACTORLAB_PRICE_FEED_API_KEY", ""),
	}, nil
}

// DatabasePath returns the path of a database file inside the data dir.
func (c *Config) DatabasePath(name string) string {
	return filepath.Join(c.DataDir, name)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}
