// Package config loads process configuration from the environment,
// following the teacher's env-first-with-fallback convention
// (TRADER_DATA_DIR / DATA_DIR generalized here to IRRIG_DATA_DIR / DATA_DIR),
// with an optional local .env file for development via godotenv.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

const defaultDataDir = "/home/arduino/data"

// Config is the process-wide configuration resolved at startup.
type Config struct {
	// DataDir is where settings/programs/run_state/system_log documents
	// live.
	DataDir string
	// HTTPPort is the bind port for the HTTP surface (internal/httpapi).
	HTTPPort int
	// LogLevel is the zerolog level name (trace/debug/info/warn/error).
	LogLevel string
	// LogPretty selects the human-readable console writer over JSON.
	LogPretty bool
	// MCUSocketPath is the unix socket the GPIO driver dials.
	MCUSocketPath string
	// FactorySeedPath is an optional YAML factory-settings override file.
	FactorySeedPath string
	// WifiInterface is the network interface the connectivity supplier
	// drives (internal/connectivity).
	WifiInterface string
}

// Load resolves Config from the environment, loading a local .env file
// first if present (ignored if absent -- this is a convenience for
// development, not a requirement in production).
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := firstNonEmpty(os.Getenv("IRRIG_DATA_DIR"), os.Getenv("DATA_DIR"), defaultDataDir)
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	port := 8080
	if v := os.Getenv("IRRIG_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			port = n
		}
	}

	return &Config{
		DataDir:         absDataDir,
		HTTPPort:        port,
		LogLevel:        firstNonEmpty(os.Getenv("IRRIG_LOG_LEVEL"), "info"),
		LogPretty:       os.Getenv("IRRIG_LOG_PRETTY") == "1",
		MCUSocketPath:   firstNonEmpty(os.Getenv("IRRIG_MCU_SOCKET"), "/var/run/irrigation-mcu.sock"),
		FactorySeedPath: os.Getenv("IRRIG_FACTORY_SEED"),
		WifiInterface:   firstNonEmpty(os.Getenv("IRRIG_WIFI_INTERFACE"), "wlan0"),
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
