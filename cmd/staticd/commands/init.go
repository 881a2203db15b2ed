package commands

import (
	"fmt"
	"os"

	"github.com/marmos91/staticd/internal/cli/prompt"
	"github.com/marmos91/staticd/pkg/config"
	"github.com/spf13/cobra"
)

var (
	initForce       bool
	initInteractive bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample staticd configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/staticd/config.yaml.
Use --config to specify a custom path. If the file exists you are asked before
it is overwritten; --force skips the question.

Examples:
  # Initialize with default location
  staticd init

  # Answer a few questions instead of taking every default
  staticd init --interactive

  # Initialize with custom path, overwriting without asking
  staticd init --config /etc/staticd/config.yaml --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
	initCmd.Flags().BoolVarP(&initInteractive, "interactive", "i", false, "Prompt for the main server settings")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	force := initForce
	if _, err := os.Stat(configPath); err == nil {
		ok, err := prompt.ConfirmWithForce(fmt.Sprintf("%s already exists. Overwrite", configPath), initForce)
		if err != nil {
			if prompt.IsAborted(err) {
				return nil
			}
			return err
		}
		if !ok {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Keeping existing configuration.")
			return nil
		}
		force = true
	}

	cfg := config.GetDefaultConfig()
	if initInteractive {
		if err := askServerSettings(cfg); err != nil {
			if prompt.IsAborted(err) {
				return nil
			}
			return err
		}
		if err := config.Validate(cfg); err != nil {
			return err
		}
	}

	if err := config.WriteSample(configPath, cfg, force); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file created at: %s\n", configPath)
	_, _ = fmt.Fprintln(out, "\nNext steps:")
	_, _ = fmt.Fprintln(out, "  1. Edit the configuration file to customize your setup")
	_, _ = fmt.Fprintln(out, "  2. Start the server with: staticd start")
	_, _ = fmt.Fprintf(out, "  3. Or specify custom config: staticd start --config %s\n", configPath)
	return nil
}

func askServerSettings(cfg *config.Config) error {
	var err error
	if cfg.Server.StaticDir, err = prompt.Input("Static directory", cfg.Server.StaticDir); err != nil {
		return err
	}
	if cfg.Server.Port, err = prompt.InputPort("Listen port", cfg.Server.Port); err != nil {
		return err
	}
	if cfg.Server.Workers, err = prompt.InputPositive("Workers", cfg.Server.Workers); err != nil {
		return err
	}
	if cfg.Server.QueueCapacity, err = prompt.InputPositive("Queue capacity", cfg.Server.QueueCapacity); err != nil {
		return err
	}
	cacheOn, err := prompt.Confirm("Enable the file cache", true)
	if err != nil {
		return err
	}
	cfg.Server.CacheEnabled = &cacheOn
	return nil
}
