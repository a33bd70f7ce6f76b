package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parsedCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("config", "", "")
	cmd.Flags().String("log-level", "", "")
	cmd.Flags().String("db", "", "")
	cmd.Flags().Bool("verbose", false, "")
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestConfigureLogger(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    logrus.Level
		wantErr bool
	}{
		{name: "silent by default", want: logrus.PanicLevel},
		{name: "log level", args: []string{"--log-level", "warn"}, want: logrus.WarnLevel},
		{name: "verbose", args: []string{"--verbose"}, want: logrus.DebugLevel},
		{name: "log level wins over verbose", args: []string{"--verbose", "--log-level", "error"}, want: logrus.ErrorLevel},
		{name: "invalid level", args: []string{"--log-level", "loud"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := parsedCommand(t, tt.args...)
			cfg, err := loadConfig(cmd)
			require.NoError(t, err)

			logger, err := configureLogger(cmd, cfg)

			if tt.wantErr {
				assert.ErrorContains(t, err, "invalid log level")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, logger.GetLevel())
		})
	}
}

func TestLoadConfig_FileAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beaconpair.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: info\ndatabase_path: from-file.db\noutput_format: json\n"), 0o600))

	cmd := parsedCommand(t, "--config", path, "--db", "from-flag.db")
	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	logger, err := configureLogger(cmd, cfg)
	require.NoError(t, err)

	assert.Equal(t, "from-flag.db", cfg.DatabasePath)
	assert.Equal(t, "json", cfg.OutputFormat)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel(), "config level MUST apply when --config is given")
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := loadConfig(parsedCommand(t, "--config", filepath.Join(t.TempDir(), "absent.yaml")))

	assert.ErrorIs(t, err, os.ErrNotExist)
}
