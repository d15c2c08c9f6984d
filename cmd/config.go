package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/sfclive/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect sfclive configuration",
	Long: `Inspect sfclive configuration files and settings.

Examples:
  sfclive config show                        # Show the effective configuration
  sfclive config validate                    # Validate .sfclive.yml in current directory
  sfclive config validate --file config.yml  # Validate a specific file`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Display the effective configuration as YAML after loading the config
file, applying SFCLIVE_ environment overrides, flags and defaults.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate a configuration file for correctness.

This command checks for:
- Valid port ranges and hostnames
- Pacing delays where min_delay does not exceed max_delay
- Known scoping strategies, log levels and formats
- Well-formed sanitizer entries`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

var (
	configFile   string
	configStrict bool
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)

	configValidateCmd.Flags().
		StringVarP(&configFile, "file", "f", "", "Configuration file to validate (default: .sfclive.yml)")
	configValidateCmd.Flags().BoolVar(&configStrict, "strict", false, "Treat warnings as errors")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	return enc.Close()
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	targetFile := configFile
	if targetFile == "" {
		if _, err := os.Stat(".sfclive.yml"); err != nil {
			return errors.New("no configuration file found. Use --file to specify a config file")
		}
		targetFile = ".sfclive.yml"
	}
	if _, err := os.Stat(targetFile); os.IsNotExist(err) {
		return fmt.Errorf("configuration file %s does not exist", targetFile)
	}

	fmt.Fprintf(out, "Validating configuration file: %s\n", targetFile)

	v := viper.New()
	v.SetConfigFile(targetFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read configuration file: %w", err)
	}

	// Keys missing from the file keep their defaults.
	cfg := config.Default()
	cfg.Server.AllowedOrigins = nil
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to parse configuration: %w", err)
	}

	result := config.ValidateConfigWithDetails(cfg)
	if !result.HasErrors() && !result.HasWarnings() {
		fmt.Fprintln(out, successStyle.Render("Configuration is valid"))
		return nil
	}

	fmt.Fprint(out, result.String())
	if result.HasErrors() {
		return fmt.Errorf("configuration validation failed with %d errors", len(result.Errors))
	}
	if configStrict {
		return fmt.Errorf("configuration validation failed in strict mode with %d warnings", len(result.Warnings))
	}
	fmt.Fprintf(out, "Configuration is valid with %d warnings. Use --strict to treat warnings as errors.\n",
		len(result.Warnings))
	return nil
}
