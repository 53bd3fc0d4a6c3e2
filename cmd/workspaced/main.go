// Command workspaced serves per-user workspace trackers over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nclamvn/prismy-production-sub002/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "workspaced",
	Short: "Workspace activity and AI operation tracker",
	Long: `workspaced keeps one live workspace per user: mode changes, the
activity log, AI operations, suggestions and insights. State is synced to
SQLite and/or a remote backend on a fixed interval.

Configuration is read from the environment (see LISTEN_ADDR, AUTH_MODE,
SYNC_MODE, DB_PATH) and an optional YAML catalog at WORKSPACE_CATALOG_PATH.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "workspaced", version)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, pruneCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and builds the process logger.
func setup() (*config.Config, zerolog.Logger, error) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	log.Logger = logger

	cfg, err := config.Load()
	if err != nil {
		return nil, logger, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, logger, err
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	return cfg, logger, nil
}
