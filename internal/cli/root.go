// Package cli implements the pharmacache operator CLI: inspecting and
// clearing the persisted snapshot, and initializing configuration.
package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rxledger/pharmacache/internal/config"
	"github.com/rxledger/pharmacache/internal/logging"
)

// logger is the package-level logger for CLI operations, configured by the
// root command's PersistentPreRunE.
var logger zerolog.Logger //nolint:gochecknoglobals // set once per invocation

// NewRootCmd creates the root cobra command.
func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "pharmacache",
		Short:   "Pharmacy POS cache engine tooling",
		Long:    "pharmacache: inspect and manage the time-windowed analytics cache",
		Version: version,
		Example: rootCmdExample,
		// Errors surface once, through Execute.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			level := cfg.Logging.Level
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				level = "debug"
			}
			logger = logging.Component(
				logging.New(level, cfg.Logging.Format, cmd.ErrOrStderr()), "cli")
			return nil
		},
	}

	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	cmd.PersistentFlags().String("config", "", "config file path (default ~/.pharmacache/config.yaml)")
	cmd.AddCommand(newSnapshotCmd(), newConfigCmd())
	return cmd
}

// loadConfig resolves the --config flag and loads configuration.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

// Execute runs the root command and returns the process exit code.
func Execute(version string) int {
	if err := NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

const rootCmdExample = `  # Show what the persisted cache snapshot holds
  pharmacache snapshot inspect

  # Drop the persisted snapshot (next launch starts cold)
  pharmacache snapshot clear

  # Write a commented default config file
  pharmacache config init`
