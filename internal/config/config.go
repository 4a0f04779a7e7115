// Package config provides configuration management for proxyforge using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort      = 8080
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second

	defaultDatabasePath = "proxyforge.db"

	defaultWatchPollInterval = 15 * time.Second
	defaultStabilityMinAge   = 10 * time.Second
	defaultStabilityChecks   = 3
	defaultWatchScanTimeout  = 30 * time.Second

	defaultMinFreeDisk       = 10 * 1024 * 1024 * 1024 // 10GB
	defaultMaxConcurrentJobs = 1

	defaultHeartbeatInterval = 10 * time.Second
	defaultOfflineThreshold  = 30 * time.Second
	defaultReportDirName     = "reports"
)

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	FFmpeg     FFmpegConfig     `mapstructure:"ffmpeg"`
	Resolve    ResolveConfig    `mapstructure:"resolve"`
	Watch      WatchConfig      `mapstructure:"watch"`
	Automation AutomationConfig `mapstructure:"automation"`
	License    LicenseConfig    `mapstructure:"license"`
	Reports    ReportsConfig    `mapstructure:"reports"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig holds the embedded store configuration.
// proxyforge persists all state in a single SQLite file.
type DatabaseConfig struct {
	Path     string `mapstructure:"path"`
	LogLevel string `mapstructure:"log_level"` // silent, error, warn, info
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// FFmpegConfig holds FFmpeg binary configuration.
type FFmpegConfig struct {
	BinaryPath string `mapstructure:"binary_path"` // Path to ffmpeg binary (empty = PATH lookup)
	ProbePath  string `mapstructure:"probe_path"`  // Path to ffprobe binary (empty = PATH lookup)
}

// ResolveConfig holds DaVinci Resolve integration configuration.
type ResolveConfig struct {
	// Enabled marks Resolve as supported in this deployment profile.
	// When false, jobs that request the resolve engine are refused at the
	// control surface with 501.
	Enabled bool `mapstructure:"enabled"`
	// ScriptPath is the bridge script invoked through the Resolve scripting API.
	ScriptPath string `mapstructure:"script_path"`
	// AvailabilityTimeout bounds the availability probe.
	AvailabilityTimeout time.Duration `mapstructure:"availability_timeout"`
	// MaxListedPresets caps the preset list embedded in error messages.
	MaxListedPresets int `mapstructure:"max_listed_presets"`
}

// WatchConfig holds watch-folder engine configuration.
type WatchConfig struct {
	PollInterval         time.Duration  `mapstructure:"poll_interval"`
	StabilityMinAge      time.Duration  `mapstructure:"stability_min_age"`
	RequiredStableChecks int            `mapstructure:"required_stable_checks"`
	ScanTimeout          time.Duration  `mapstructure:"scan_timeout"`
	Folders              []FolderConfig `mapstructure:"folders"`
}

// FolderConfig declares a single watched folder.
type FolderConfig struct {
	Path        string `mapstructure:"path"`
	Enabled     bool   `mapstructure:"enabled"`
	Recursive   bool   `mapstructure:"recursive"`
	PresetID    string `mapstructure:"preset_id"`
	AutoExecute bool   `mapstructure:"auto_execute"`
}

// AutomationConfig gates automatic execution started by the watch-folder path.
// Defaults match the historical hard-coded policy: 10GB free disk and a single
// concurrent job.
type AutomationConfig struct {
	MinFreeDisk       ByteSize `mapstructure:"min_free_disk"`
	MaxConcurrentJobs int      `mapstructure:"max_concurrent_jobs"`
}

// LicenseConfig holds license resolution configuration.
// FORGE_LICENSE_TYPE overrides the file, which overrides the default tier.
type LicenseConfig struct {
	Type string `mapstructure:"type"` // free, freelance, facility ("" = resolve from file/default)
	File string `mapstructure:"file"` // optional license file path

	// HeartbeatInterval is how often this process refreshes its worker slot.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	// OfflineThreshold is the last-seen age past which a worker is purged.
	OfflineThreshold time.Duration `mapstructure:"offline_threshold"`
}

// ReportsConfig holds report artifact discovery configuration.
type ReportsConfig struct {
	Directory string `mapstructure:"directory"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration and are
// prefixed with FORGE_ using underscores for nesting, e.g. FORGE_SERVER_PORT
// or FORGE_LICENSE_TYPE.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/proxyforge")
		v.AddConfigPath("$HOME/.proxyforge")
	}

	v.SetEnvPrefix("FORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - defaults and env vars apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults registers default values on the given viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("database.path", defaultDatabasePath)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")

	v.SetDefault("resolve.enabled", false)
	v.SetDefault("resolve.availability_timeout", 10*time.Second)
	v.SetDefault("resolve.max_listed_presets", 10)

	v.SetDefault("watch.poll_interval", defaultWatchPollInterval)
	v.SetDefault("watch.stability_min_age", defaultStabilityMinAge)
	v.SetDefault("watch.required_stable_checks", defaultStabilityChecks)
	v.SetDefault("watch.scan_timeout", defaultWatchScanTimeout)

	v.SetDefault("automation.min_free_disk", defaultMinFreeDisk)
	v.SetDefault("automation.max_concurrent_jobs", defaultMaxConcurrentJobs)

	v.SetDefault("license.type", "")
	v.SetDefault("license.file", "")
	v.SetDefault("license.heartbeat_interval", defaultHeartbeatInterval)
	v.SetDefault("license.offline_threshold", defaultOfflineThreshold)

	v.SetDefault("reports.directory", defaultReportDirName)
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}
	if c.Watch.RequiredStableChecks < 1 {
		return fmt.Errorf("watch.required_stable_checks must be >= 1, got %d", c.Watch.RequiredStableChecks)
	}
	if c.Watch.PollInterval <= 0 {
		return fmt.Errorf("watch.poll_interval must be positive, got %s", c.Watch.PollInterval)
	}
	if c.Automation.MaxConcurrentJobs < 1 {
		return fmt.Errorf("automation.max_concurrent_jobs must be >= 1, got %d", c.Automation.MaxConcurrentJobs)
	}
	if c.License.Type != "" {
		switch c.License.Type {
		case "free", "freelance", "facility":
		default:
			return fmt.Errorf("license.type must be free, freelance, or facility; got %q", c.License.Type)
		}
	}
	return nil
}
