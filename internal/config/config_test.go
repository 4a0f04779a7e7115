package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	// Explicit path that does not exist is an error from viper.
	if err == nil {
		t.Skip("viper accepted missing explicit config file")
	}

	cfg, err = Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "proxyforge.db", cfg.Database.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 15*time.Second, cfg.Watch.PollInterval)
	assert.Equal(t, 3, cfg.Watch.RequiredStableChecks)
	assert.Equal(t, int64(10*1024*1024*1024), cfg.Automation.MinFreeDisk.Bytes())
	assert.Equal(t, 1, cfg.Automation.MaxConcurrentJobs)
	assert.False(t, cfg.Resolve.Enabled)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
database:
  path: /tmp/forge-test.db
logging:
  level: debug
  format: text
automation:
  min_free_disk: 5GB
  max_concurrent_jobs: 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/tmp/forge-test.db", cfg.Database.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, int64(5*1024*1024*1024), cfg.Automation.MinFreeDisk.Bytes())
	assert.Equal(t, 2, cfg.Automation.MaxConcurrentJobs)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("FORGE_SERVER_PORT", "7070")
	t.Setenv("FORGE_LICENSE_TYPE", "freelance")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "freelance", cfg.License.Type)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		v := viper.New()
		SetDefaults(v)
		var cfg Config
		require.NoError(t, v.Unmarshal(&cfg))
		return &cfg
	}

	t.Run("valid defaults", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("bad port", func(t *testing.T) {
		cfg := base()
		cfg.Server.Port = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad log level", func(t *testing.T) {
		cfg := base()
		cfg.Logging.Level = "verbose"
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad license tier", func(t *testing.T) {
		cfg := base()
		cfg.License.Type = "enterprise"
		assert.Error(t, cfg.Validate())
	})

	t.Run("zero stable checks", func(t *testing.T) {
		cfg := base()
		cfg.Watch.RequiredStableChecks = 0
		assert.Error(t, cfg.Validate())
	})
}

func TestParseByteSize(t *testing.T) {
	b, err := ParseByteSize("10GB")
	require.NoError(t, err)
	assert.Equal(t, int64(10*1024*1024*1024), b.Bytes())

	_, err = ParseByteSize("10XB")
	assert.Error(t, err)
}
