// Package config provides configuration management for sfclive using Viper
// for loading from files, environment variables and command-line flags.
//
// The configuration system supports YAML files, environment variable
// overrides with the SFCLIVE_ prefix and validation. It manages the preview
// server, trace pacing, style scoping, the template security policy,
// logging and the file watcher.
package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/sfclive/internal/logging"
	"github.com/conneroisu/sfclive/internal/sanitizer"
	"github.com/conneroisu/sfclive/internal/scoping"
)

// Defaults.
const (
	DefaultHost     = "localhost"
	DefaultPort     = 8080
	DefaultMinDelay = 1000 * time.Millisecond
	DefaultMaxDelay = 3000 * time.Millisecond
	DefaultDebounce = 300 * time.Millisecond
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	Scoping   ScopingConfig   `mapstructure:"scoping" yaml:"scoping"`
	Sanitizer SanitizerConfig `mapstructure:"sanitizer" yaml:"sanitizer"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Watch     WatchConfig     `mapstructure:"watch" yaml:"watch"`
}

type ServerConfig struct {
	Host           string   `mapstructure:"host" yaml:"host"`
	Port           int      `mapstructure:"port" yaml:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// Addr returns host:port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SchedulerConfig controls trace pacing.
type SchedulerConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	MinDelay time.Duration `mapstructure:"min_delay" yaml:"min_delay"`
	MaxDelay time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
}

type ScopingConfig struct {
	Strategy string `mapstructure:"strategy" yaml:"strategy"`
}

// SanitizerConfig lists constructs blocked in addition to the built-in
// policy.
type SanitizerConfig struct {
	BlockedTags       []string `mapstructure:"blocked_tags" yaml:"blocked_tags"`
	BlockedDirectives []string `mapstructure:"blocked_directives" yaml:"blocked_directives"`
	BlockedEvents     []string `mapstructure:"blocked_events" yaml:"blocked_events"`
}

// Policy merges the configured entries into the default policy.
func (c SanitizerConfig) Policy() sanitizer.Policy {
	return sanitizer.DefaultPolicy().Merge(sanitizer.Policy{
		BlockedTags:       c.BlockedTags,
		BlockedDirectives: c.BlockedDirectives,
		BlockedEvents:     c.BlockedEvents,
	})
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// LoggerConfig converts the section into a logger configuration writing to w.
func (c LoggingConfig) LoggerConfig(w io.Writer) (*logging.LoggerConfig, error) {
	level, err := logging.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	return &logging.LoggerConfig{Level: level, Format: c.Format, Output: w}, nil
}

type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

// StrategyValue returns the parsed scoping strategy.
func (c *Config) StrategyValue() scoping.Strategy {
	s, err := scoping.ParseStrategy(c.Scoping.Strategy)
	if err != nil {
		return scoping.StrategyAttribute
	}
	return s
}

// Load reads the global viper instance into a Config, applies defaults and
// validates the result.
func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Lists set from env or flags arrive as one comma separated string.
	for _, list := range []*[]string{
		&config.Server.AllowedOrigins,
		&config.Sanitizer.BlockedTags,
		&config.Sanitizer.BlockedDirectives,
		&config.Sanitizer.BlockedEvents,
	} {
		*list = splitList(*list)
	}

	applyDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	var config Config
	applyDefaults(&config)
	config.Scheduler.Enabled = true
	return &config
}

func applyDefaults(config *Config) {
	if config.Server.Host == "" {
		config.Server.Host = DefaultHost
	}
	if config.Server.Port == 0 && !viper.IsSet("server.port") {
		config.Server.Port = DefaultPort
	}
	if len(config.Server.AllowedOrigins) == 0 {
		config.Server.AllowedOrigins = []string{
			fmt.Sprintf("http://localhost:%d", config.Server.Port),
			fmt.Sprintf("http://127.0.0.1:%d", config.Server.Port),
		}
	}

	if !viper.IsSet("scheduler.enabled") {
		config.Scheduler.Enabled = true
	}
	if config.Scheduler.MinDelay == 0 && !viper.IsSet("scheduler.min_delay") {
		config.Scheduler.MinDelay = DefaultMinDelay
	}
	if config.Scheduler.MaxDelay == 0 && !viper.IsSet("scheduler.max_delay") {
		config.Scheduler.MaxDelay = DefaultMaxDelay
	}

	if config.Scoping.Strategy == "" {
		config.Scoping.Strategy = string(scoping.StrategyAttribute)
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Format == "" {
		config.Logging.Format = "text"
	}

	if config.Watch.Debounce == 0 {
		config.Watch.Debounce = DefaultDebounce
	}
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validateSchedulerConfig(&config.Scheduler); err != nil {
		return fmt.Errorf("scheduler config: %w", err)
	}

	if _, err := scoping.ParseStrategy(config.Scoping.Strategy); err != nil {
		return fmt.Errorf("scoping config: %w", err)
	}

	if err := validateSanitizerConfig(&config.Sanitizer); err != nil {
		return fmt.Errorf("sanitizer config: %w", err)
	}

	if err := validateLoggingConfig(&config.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if config.Watch.Debounce < 0 {
		return fmt.Errorf("watch config: debounce %s is negative", config.Watch.Debounce)
	}

	return nil
}

var dangerousChars = []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// Allow 0 for system-assigned ports in testing.
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	for _, char := range dangerousChars {
		if strings.Contains(config.Host, char) {
			return fmt.Errorf("host contains dangerous character: %s", char)
		}
	}

	for _, origin := range config.AllowedOrigins {
		if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("allowed origin %q must start with http:// or https://", origin)
		}
	}

	return nil
}

func validateSchedulerConfig(config *SchedulerConfig) error {
	if config.MinDelay < 0 || config.MaxDelay < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	if config.MaxDelay < config.MinDelay {
		return fmt.Errorf("max_delay %s is below min_delay %s", config.MaxDelay, config.MinDelay)
	}
	return nil
}

func validateSanitizerConfig(config *SanitizerConfig) error {
	for _, list := range [][]string{config.BlockedTags, config.BlockedDirectives, config.BlockedEvents} {
		for _, name := range list {
			name = strings.TrimSpace(name)
			if name == "" {
				return fmt.Errorf("blocked names must not be empty")
			}
			if strings.ContainsAny(name, " \t\r\n<>=\"'/") {
				return fmt.Errorf("blocked name %q contains markup characters", name)
			}
		}
	}
	return nil
}

func validateLoggingConfig(config *LoggingConfig) error {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		return err
	}
	switch config.Format {
	case "text", "json":
		return nil
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", config.Format)
	}
}
