// Package cli wires the auctiond commands: the API server, the bid
// worker, schema migration and dead-letter tooling.
package cli

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/iliyamo/live-auction/internal/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	EnvFile  string
	LogLevel string
}

// NewRootCommand creates the auctiond root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "auctiond",
		Short: "Live auction bidding service",
		Long: `auctiond admits bids over HTTP and WebSocket, resolves them through a
durable queue with optimistic concurrency, and relays the results to
every connected bidder.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// A missing .env file is normal outside development.
			_ = godotenv.Load(opts.EnvFile)

			cfg := logger.DefaultConfig()
			if opts.LogLevel != "" {
				cfg.Level = opts.LogLevel
			}
			logger.Init(cfg)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override LOG_LEVEL (debug|info|warn|error)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewWorkerCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewDLQCommand(opts))

	return cmd
}
