// Package cmd implements the CLI commands for proxyforge.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/proxyforge/proxyforge/internal/config"
	"github.com/proxyforge/proxyforge/internal/observability"
	"github.com/proxyforge/proxyforge/internal/version"
)

// Exit codes shared by the CLI commands.
const (
	exitOK         = 0
	exitValidation = 1
	exitExecution  = 2
	exitPartial    = 3
	exitIO         = 4
)

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

// exitCode carries the process exit code out of RunE without losing cobra's
// error printing.
var exitCode int

var rootCmd = &cobra.Command{
	Use:     "proxyforge",
	Short:   "Operator-controlled proxy generation for camera media",
	Version: version.Short(),
	Long: `proxyforge generates lower-bitrate viewing copies of camera media by
driving FFmpeg and DaVinci Resolve.

Jobs are created through the HTTP control surface, the watch-folder engine,
or a JobSpec file; execution is always started explicitly.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		if exitCode == exitOK {
			return 1
		}
	}
	return exitCode
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., ./configs, /etc/proxyforge)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")
}

// loadConfig loads configuration and installs the process logger.
// CLI flags override config and environment values only when explicitly set.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	flags := rootCmd.PersistentFlags()
	overrideString(flags, "log-level", &cfg.Logging.Level)
	overrideString(flags, "log-format", &cfg.Logging.Format)

	logger := observability.NewLogger(cfg.Logging)
	observability.SetDefault(logger)
	return cfg, nil
}

// overrideString replaces dst with the flag value when the flag was set
// explicitly on the command line.
func overrideString(flags *pflag.FlagSet, name string, dst *string) {
	if flags.Changed(name) {
		*dst, _ = flags.GetString(name)
	}
}

func fail(code int, format string, args ...any) error {
	exitCode = code
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	return fmt.Errorf(format, args...)
}
