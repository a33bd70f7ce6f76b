package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/beaconpair/internal/device"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned by Load and Validate for unusable values.
var ErrInvalidConfig = errors.New("invalid config")

// MQTTConfig configures the optional discovery publisher.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	TopicPrefix string `yaml:"topic_prefix" default:"beacons"`
	ClientID    string `yaml:"client_id"`
}

// Config holds application configuration
type Config struct {
	LogLevel     logrus.Level       `yaml:"log_level" default:"4"`
	ScanTimeout  time.Duration      `yaml:"scan_timeout" default:"10s"`
	DatabasePath string             `yaml:"database_path" default:"beaconpair.db"`
	OutputFormat string             `yaml:"output_format" default:"table"` // table, json
	UpdateBuffer int                `yaml:"update_buffer" default:"256"`
	Scan         device.ScanOptions `yaml:"scan"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults. Keys missing from the file keep
// their default values.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first unusable value.
func (c *Config) Validate() error {
	switch {
	case c.ScanTimeout < 0:
		return fmt.Errorf("%w: scan_timeout must not be negative", ErrInvalidConfig)
	case c.OutputFormat != "table" && c.OutputFormat != "json":
		return fmt.Errorf("%w: output_format %q (must be table or json)", ErrInvalidConfig, c.OutputFormat)
	case c.UpdateBuffer <= 0:
		return fmt.Errorf("%w: update_buffer must be positive", ErrInvalidConfig)
	case c.DatabasePath == "":
		return fmt.Errorf("%w: database_path is required", ErrInvalidConfig)
	case c.Scan.StartGrace < 0:
		return fmt.Errorf("%w: scan.start_grace must not be negative", ErrInvalidConfig)
	}
	return nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
