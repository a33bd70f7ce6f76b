package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, logrus.InfoLevel, cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.ScanTimeout)
	assert.Equal(t, "beaconpair.db", cfg.DatabasePath)
	assert.Equal(t, "table", cfg.OutputFormat)
	assert.Equal(t, 256, cfg.UpdateBuffer)
	assert.True(t, cfg.Scan.AllowDuplicates)
	assert.Equal(t, 250*time.Millisecond, cfg.Scan.StartGrace)
	assert.Equal(t, "beacons", cfg.MQTT.TopicPrefix)
	assert.Empty(t, cfg.MQTT.Broker)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel logrus.Level
	}{
		{
			name:     "creates logger with debug level",
			logLevel: logrus.DebugLevel,
		},
		{
			name:     "creates logger with info level",
			logLevel: logrus.InfoLevel,
		},
		{
			name:     "creates logger with warn level",
			logLevel: logrus.WarnLevel,
		},
		{
			name:     "creates logger with error level",
			logLevel: logrus.ErrorLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				LogLevel: tt.logLevel,
			}

			logger := cfg.NewLogger()

			assert.NotNil(t, logger)
			assert.Equal(t, tt.logLevel, logger.GetLevel())

			// Verify formatter is set correctly
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "beaconpair.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
scan_timeout: 3s
output_format: json
scan:
  start_grace: 1s
mqtt:
  broker: tcp://localhost:1883
`)

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, cfg.LogLevel)
	assert.Equal(t, 3*time.Second, cfg.ScanTimeout)
	assert.Equal(t, "json", cfg.OutputFormat)
	assert.Equal(t, time.Second, cfg.Scan.StartGrace)
	assert.True(t, cfg.Scan.AllowDuplicates, "unset keys MUST keep defaults")
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, "beacons", cfg.MQTT.TopicPrefix)
	assert.Equal(t, "beaconpair.db", cfg.DatabasePath)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		invalid bool
	}{
		{name: "malformed yaml", body: "scan_timeout: [1"},
		{name: "unknown log level", body: "log_level: loud"},
		{name: "bad output format", body: "output_format: csv", invalid: true},
		{name: "negative timeout", body: "scan_timeout: -1s", invalid: true},
		{name: "zero update buffer", body: "update_buffer: 0", invalid: true},
		{name: "empty database path", body: `database_path: ""`, invalid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))

			require.Error(t, err)
			if tt.invalid {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))

	assert.ErrorIs(t, err, os.ErrNotExist)
}
