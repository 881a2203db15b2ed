package config

import (
	"fmt"
	"io"
	"os"

	"github.com/marmos91/staticd/internal/cli/output"
	"github.com/marmos91/staticd/pkg/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the staticd configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  staticd config validate

  # Validate specific config file
  staticd config validate --config /etc/staticd/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	// Get config path from parent's persistent flag
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	printValidation(cmd.OutOrStdout(), displayPath, cfg, configWarnings(cfg))
	return nil
}

// configWarnings lists settings that are valid but probably not intended.
func configWarnings(cfg *config.Config) []string {
	var warnings []string

	if cfg.Origin.Type == config.OriginDir {
		if info, err := os.Stat(cfg.Server.StaticDir); err != nil {
			warnings = append(warnings, fmt.Sprintf("Static directory %q does not exist", cfg.Server.StaticDir))
		} else if !info.IsDir() {
			warnings = append(warnings, fmt.Sprintf("Static directory %q is not a directory", cfg.Server.StaticDir))
		}
	}

	if !cfg.Metrics.Enabled && !cfg.API.IsEnabled() {
		warnings = append(warnings, "Metrics and admin API both disabled - the server cannot be observed at runtime")
	}

	return warnings
}

func printValidation(w io.Writer, path string, cfg *config.Config, warnings []string) {
	_, _ = fmt.Fprintf(w, "Configuration file: %s\n", path)
	_, _ = fmt.Fprintln(w, "Validation: OK")

	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(w, "\nWarnings:")
		for _, msg := range warnings {
			_, _ = fmt.Fprintf(w, "  - %s\n", msg)
		}
	}

	var summary output.KeyValues
	summary.Add("Listen", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
	summary.Add("Origin", cfg.Origin.Describe(cfg.Server.StaticDir))
	summary.Add("Workers", fmt.Sprint(cfg.Server.Workers))
	summary.Add("Queue capacity", fmt.Sprint(cfg.Server.QueueCapacity))
	summary.Add("Cache", enabledString(cfg.Server.IsCacheEnabled()))
	summary.Add("Log level", cfg.Logging.Level)

	_, _ = fmt.Fprintln(w, "\nConfiguration summary:")
	_ = output.PrintKeyValues(w, summary)
}

func enabledString(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}
