package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/werpogo98-bit/buoysync/internal/adapters/serial"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Serial  serial.Config `yaml:"serial"`
	Store   StoreConfig   `yaml:"store"`
	Journal JournalConfig `yaml:"journal"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
	Table  string `yaml:"table"`
	// CreateSchema defaults to true; a pointer keeps an explicit false.
	CreateSchema *bool `yaml:"create_schema"`
}

func (s StoreConfig) ShouldCreateSchema() bool {
	return s.CreateSchema == nil || *s.CreateSchema
}

type JournalConfig struct {
	Dir      string `yaml:"dir"`
	Disabled bool   `yaml:"disabled"`
}

type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads path (optional when empty), then .env and BUOY_* environment
// overrides, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	_ = godotenv.Load(".env")
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"BUOY_SERIAL_PORT":  &c.Serial.Port,
		"BUOY_STORE_DRIVER": &c.Store.Driver,
		"BUOY_STORE_PATH":   &c.Store.Path,
		"BUOY_STORE_DSN":    &c.Store.DSN,
		"BUOY_JOURNAL_DIR":  &c.Journal.Dir,
		"BUOY_LOG_LEVEL":    &c.Log.Level,
	}
	for key, dst := range str {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}

	if v := strings.TrimSpace(os.Getenv("BUOY_SERIAL_BAUD")); v != "" {
		baud, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid BUOY_SERIAL_BAUD: %w", err)
		}
		c.Serial.Baud = baud
	}
	return nil
}

func (c *Config) applyDefaults() {
	c.Serial.ApplyDefaults()

	if c.Store.Driver == "" {
		c.Store.Driver = DriverSQLite
	}
	if c.Store.Path == "" {
		c.Store.Path = "water_data.db"
	}
	if c.Store.Table == "" {
		c.Store.Table = "measurements"
	}
	if c.Journal.Dir == "" {
		c.Journal.Dir = "./data/journal"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// validate checks everything except the serial port, which only the
// sync command needs; see ValidateSerial.
func (c *Config) validate() error {
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.Path == "" {
			return errors.New("store.path is required for sqlite")
		}
	case DriverPostgres:
		if c.Store.DSN == "" {
			return errors.New("store.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("store.driver %q is not supported", c.Store.Driver)
	}
	if !c.Journal.Disabled && c.Journal.Dir == "" {
		return errors.New("journal.dir is required")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q is not supported", c.Log.Format)
	}
	return nil
}

func (c *Config) ValidateSerial() error {
	if err := c.Serial.Validate(); err != nil {
		return fmt.Errorf("serial config: %w", err)
	}
	return nil
}
