package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/conneroisu/sfclive/internal/scoping"
)

// Output formats accepted by render.
const (
	OutputHTML  = "html"
	OutputJSON  = "json"
	OutputTrace = "trace"
)

var outputFormats = []string{OutputHTML, OutputJSON, OutputTrace}

// RenderFlags are the per-render inputs shared by render and watch.
type RenderFlags struct {
	Props     string
	PropsFile string
	Pace      bool
	Output    string
	Strategy  string
}

// ServerFlags configure the preview server.
type ServerFlags struct {
	Host  string
	Port  int
	Watch string
}

// AddRenderFlags adds the render flags to cmd.
func AddRenderFlags(cmd *cobra.Command) *RenderFlags {
	flags := &RenderFlags{}
	cmd.Flags().StringVar(&flags.Props, "props", "", "Component properties (JSON or @file.json)")
	cmd.Flags().StringVarP(&flags.PropsFile, "props-file", "f", "", "Properties file (JSON)")
	cmd.Flags().BoolVar(&flags.Pace, "pace", false, "Deliver trace events through the throttled scheduler")
	cmd.Flags().StringVarP(&flags.Output, "output", "o", OutputHTML, "Output format (html|json|trace)")
	cmd.Flags().StringVar(&flags.Strategy, "strategy", "", "Style scoping strategy (attribute|selector)")

	AddFlagValidation(cmd, "output", ValidateOutput)
	AddFlagValidation(cmd, "strategy", ValidateStrategy)
	return flags
}

// AddServerFlags adds the server flags to cmd.
func AddServerFlags(cmd *cobra.Command) *ServerFlags {
	flags := &ServerFlags{}
	cmd.Flags().IntVarP(&flags.Port, "port", "p", 8080, "Port to serve on")
	cmd.Flags().StringVar(&flags.Host, "host", "localhost", "Host to bind to")
	cmd.Flags().StringVarP(&flags.Watch, "watch", "w", "", "Component file to render and follow")

	AddFlagValidation(cmd, "port", ValidatePort)
	return flags
}

// ParseProps parses component properties with support for file references.
func (f *RenderFlags) ParseProps() (map[string]any, error) {
	switch {
	case f.PropsFile != "":
		return readPropsFile(f.PropsFile)
	case strings.HasPrefix(f.Props, "@"):
		return readPropsFile(strings.TrimPrefix(f.Props, "@"))
	case f.Props != "":
		var props map[string]any
		if err := json.Unmarshal([]byte(f.Props), &props); err != nil {
			return nil, fmt.Errorf("invalid JSON in props: %w", err)
		}
		return props, nil
	}
	return nil, nil
}

func readPropsFile(filename string) (map[string]any, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read props file %s: %w", filename, err)
	}

	var props map[string]any
	if err := json.Unmarshal(data, &props); err != nil {
		return nil, fmt.Errorf("invalid JSON in props file %s: %w", filename, err)
	}
	return props, nil
}

// ValidateFlags validates flag combinations and values.
func (f *RenderFlags) ValidateFlags() error {
	if f.Props != "" && f.PropsFile != "" {
		return fmt.Errorf("cannot specify both --props and --props-file")
	}
	if err := ValidateOutput(f.Output); err != nil {
		return err
	}
	if f.Strategy != "" {
		return ValidateStrategy(f.Strategy)
	}
	return nil
}

// AddFlagValidation adds validation for a specific flag
func AddFlagValidation(cmd *cobra.Command, flagName string, validator func(string) error) {
	flag := cmd.Flags().Lookup(flagName)
	if flag == nil {
		return
	}

	flag.Value = &validatingValue{
		Value:     flag.Value,
		validator: validator,
	}
}

type validatingValue struct {
	pflag.Value
	validator func(string) error
}

func (v *validatingValue) Set(val string) error {
	if v.validator != nil {
		if err := v.validator(val); err != nil {
			return err
		}
	}
	return v.Value.Set(val)
}

// ValidatePort checks a port flag value.
func ValidatePort(portStr string) error {
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port number: %s", portStr)
	}

	if port < 0 || port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", port)
	}

	return nil
}

// ValidateOutput checks an output format flag value.
func ValidateOutput(format string) error {
	if !slices.Contains(outputFormats, format) {
		return fmt.Errorf("invalid output format %s, must be one of: %s",
			format, strings.Join(outputFormats, ", "))
	}
	return nil
}

// ValidateStrategy checks a scoping strategy flag value.
func ValidateStrategy(name string) error {
	_, err := scoping.ParseStrategy(name)
	return err
}
