// Package cmd provides the command-line interface for sfclive with
// configuration management supporting multiple configuration sources.
//
// Configuration System:
//
//	The CLI supports configuration through multiple sources with clear precedence:
//	1. Command-line flags (--config, --port, etc.) - highest priority
//	2. SFCLIVE_CONFIG_FILE environment variable - custom config file path
//	3. Individual environment variables (SFCLIVE_SERVER_PORT, etc.)
//	4. Configuration files (.sfclive.yml) - lowest priority
//
// Environment Variables:
//
//	SFCLIVE_CONFIG_FILE: Path to custom configuration file
//	SFCLIVE_SERVER_PORT: Override server port
//	SFCLIVE_SCHEDULER_ENABLED: Enable/disable trace pacing
//	And more following the SFCLIVE_<SECTION>_<OPTION> pattern
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/sfclive/internal/config"
	"github.com/conneroisu/sfclive/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sfclive",
	Short: "Live renderer for single-file components",
	Long: `sfclive renders single-file components (template, script and style in one
.vue file) from raw source, entirely in-process, and reports every pipeline
stage as a trace event.

Key Features:
  • Template security checks for blocked tags, directives and events
  • Scoped styles through a per-render data-v-* attribute
  • Sandboxed script evaluation
  • Paced trace streaming over websocket
  • Browser preview with live updates

Quick Start:
  sfclive render Hello.vue         Render once and print the markup
  sfclive serve --watch Hello.vue  Start the preview server
  sfclive config show              Show the effective configuration`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .sfclive.yml, can also use SFCLIVE_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig selects the config file and enables SFCLIVE_ environment
// overrides. A missing file is not an error.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("SFCLIVE_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".sfclive")
	}

	viper.SetEnvPrefix("SFCLIVE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig loads the configuration and builds the logger writing to the
// command's error stream.
func loadConfig(cmd *cobra.Command) (*config.Config, logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newLogger(cfg *config.Config, w io.Writer) (logging.Logger, error) {
	lc, err := cfg.Logging.LoggerConfig(w)
	if err != nil {
		return nil, fmt.Errorf("invalid logging configuration: %w", err)
	}
	return logging.NewLogger(lc).WithComponent("cli"), nil
}
