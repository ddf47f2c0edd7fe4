package buoysync

import (
	"github.com/werpogo98-bit/buoysync/internal/adapters/serial"
	"github.com/werpogo98-bit/buoysync/internal/app/config"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// SerialConfig holds port, baud, timeouts and the trigger byte.
	SerialConfig = serial.Config
	// StoreConfig selects and configures the reading store.
	StoreConfig = config.StoreConfig
	// JournalConfig configures the on-disk line journal.
	JournalConfig = config.JournalConfig
	// MetricsConfig configures the Prometheus textfile export.
	MetricsConfig = config.MetricsConfig
	// LogConfig configures the slog handler.
	LogConfig = config.LogConfig
)

const (
	DriverSQLite   = config.DriverSQLite
	DriverPostgres = config.DriverPostgres
)

// LoadConfig loads YAML from disk (optional), .env and BUOY_* overrides.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}
