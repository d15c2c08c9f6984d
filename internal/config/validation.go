package config

import (
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/conneroisu/sfclive/internal/logging"
	"github.com/conneroisu/sfclive/internal/sanitizer"
	"github.com/conneroisu/sfclive/internal/scoping"
	"github.com/conneroisu/sfclive/internal/validation"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	if len(vr.Errors) > 0 {
		builder.WriteString("Validation errors:\n")
		for _, err := range vr.Errors {
			builder.WriteString(fmt.Sprintf("  • %s: %s\n", err.Field, err.Message))
			for _, suggestion := range err.Suggestions {
				builder.WriteString(fmt.Sprintf("    - %s\n", suggestion))
			}
		}
		builder.WriteString("\n")
	}

	if len(vr.Warnings) > 0 {
		builder.WriteString("Validation warnings:\n")
		for _, warning := range vr.Warnings {
			builder.WriteString(fmt.Sprintf("  • %s: %s\n", warning.Field, warning.Message))
			for _, suggestion := range warning.Suggestions {
				builder.WriteString(fmt.Sprintf("    - %s\n", suggestion))
			}
		}
	}

	return builder.String()
}

// ValidateConfigWithDetails performs comprehensive validation with detailed feedback
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{
		Valid:    true,
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	validateServerConfigDetails(&config.Server, result)
	validateSchedulerConfigDetails(&config.Scheduler, result)
	validateScopingConfigDetails(&config.Scoping, result)
	validateSanitizerConfigDetails(&config.Sanitizer, result)
	validateLoggingConfigDetails(&config.Logging, result)

	result.Valid = !result.HasErrors()

	return result
}

func validateServerConfigDetails(config *ServerConfig, result *ValidationResult) {
	if config.Port < 0 || config.Port > 65535 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.port",
			Value:   config.Port,
			Message: fmt.Sprintf("port %d is not in valid range 0-65535", config.Port),
			Suggestions: []string{
				"Use a port between 1024-65535 for non-privileged access",
				"Port 0 allows system to assign an available port",
			},
		})
	} else if config.Port > 0 && config.Port < 1024 {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:   "server.port",
			Value:   config.Port,
			Message: "port below 1024 requires elevated privileges",
			Suggestions: []string{
				"Consider using a port above 1024 for development",
			},
		})
	}

	if config.Host != "" {
		if err := validateHostname(config.Host); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "server.host",
				Value:   config.Host,
				Message: err.Error(),
				Suggestions: []string{
					"Use 'localhost' for local development",
					"Use '0.0.0.0' to bind to all interfaces",
				},
			})
		}
	}

	for _, origin := range config.AllowedOrigins {
		if err := validation.ValidateURL(origin); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "server.allowed_origins",
				Value:   origin,
				Message: err.Error(),
				Suggestions: []string{
					"Origins look like http://localhost:8080",
				},
			})
		}
	}
}

func validateSchedulerConfigDetails(config *SchedulerConfig, result *ValidationResult) {
	if err := validateSchedulerConfig(config); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "scheduler",
			Value:   fmt.Sprintf("%s..%s", config.MinDelay, config.MaxDelay),
			Message: err.Error(),
			Suggestions: []string{
				"Set min_delay and max_delay to durations such as 1s and 3s",
			},
		})
		return
	}
	if config.Enabled && config.MaxDelay == 0 {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:   "scheduler",
			Value:   config.MaxDelay,
			Message: "pacing is enabled without a delay",
			Suggestions: []string{
				"Disable the scheduler or give it a max_delay",
			},
		})
	}
}

func validateScopingConfigDetails(config *ScopingConfig, result *ValidationResult) {
	if _, err := scoping.ParseStrategy(config.Strategy); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "scoping.strategy",
			Value:   config.Strategy,
			Message: err.Error(),
			Suggestions: []string{
				"Use 'attribute' to wrap the sheet in one scoped block",
				"Use 'selector' to scope every selector",
			},
		})
	}
}

func validateSanitizerConfigDetails(config *SanitizerConfig, result *ValidationResult) {
	if err := validateSanitizerConfig(config); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "sanitizer",
			Message: err.Error(),
			Suggestions: []string{
				"List bare names such as 'object' or 'v-once'",
			},
		})
		return
	}

	defaults := sanitizer.DefaultPolicy()
	for _, tag := range config.BlockedTags {
		if contains(defaults.BlockedTags, strings.ToLower(tag)) {
			result.Warnings = append(result.Warnings, ValidationError{
				Field:   "sanitizer.blocked_tags",
				Value:   tag,
				Message: fmt.Sprintf("tag %q is already blocked by default", tag),
			})
		}
	}
	for _, event := range config.BlockedEvents {
		if strings.HasPrefix(event, "@") || strings.HasPrefix(event, "v-on:") {
			result.Warnings = append(result.Warnings, ValidationError{
				Field:   "sanitizer.blocked_events",
				Value:   event,
				Message: "event names are matched without their @ or v-on: prefix",
			})
		}
	}
}

func validateLoggingConfigDetails(config *LoggingConfig, result *ValidationResult) {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:       "logging.level",
			Value:       config.Level,
			Message:     err.Error(),
			Suggestions: []string{"Use one of debug, info, warn, error"},
		})
	}
	if config.Format != "" && config.Format != "text" && config.Format != "json" {
		result.Errors = append(result.Errors, ValidationError{
			Field:       "logging.format",
			Value:       config.Format,
			Message:     fmt.Sprintf("unknown log format %q", config.Format),
			Suggestions: []string{"Use 'text' or 'json'"},
		})
	}
}

var hostnameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

func validateHostname(host string) error {
	for _, char := range dangerousChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("contains dangerous character: %s", char)
		}
	}

	if net.ParseIP(host) != nil {
		return nil
	}

	if !hostnameRegex.MatchString(host) {
		return fmt.Errorf("invalid hostname format")
	}

	return nil
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
