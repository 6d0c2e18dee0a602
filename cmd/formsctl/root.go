package main

import (
	"context"
	"fmt"

	"swish-forms/internal/app"
	"swish-forms/internal/config"
	"swish-forms/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfg    *config.Config
	logger *zap.Logger
	debug  bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "formsctl",
	Short: "Maintenance tasks for the Swishfolio form pipeline",
	Long: `formsctl runs one-off maintenance against the form pipeline
database using the same environment as the server.

Example:
  formsctl seed-forms forms.yaml     # Register form definitions
  formsctl rotate-secrets            # Re-encrypt credentials with the newest key
  formsctl test-connection brevo     # Check stored ESP credentials
  formsctl migrate-data              # Copy the SQLite database into PostgreSQL`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.LoadConfig()
		level := cfg.LogLevel
		if debug {
			level = "debug"
		}
		l, err := logging.New(level)
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Sync()
		}
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug output")

	rootCmd.AddCommand(migrateDataCmd)
	rootCmd.AddCommand(syncSequencesCmd)
	rootCmd.AddCommand(seedFormsCmd)
	rootCmd.AddCommand(rotateSecretsCmd)
	rootCmd.AddCommand(testConnectionCmd)
}

// openApp builds the pipeline against the configured database.
func openApp() (*app.App, error) {
	a, err := app.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initialise: %w", err)
	}
	return a, nil
}
