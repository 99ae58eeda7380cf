package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/milestonesync/internal/logging"
)

// rootCmd represents the base command for the milestonesync application
var rootCmd = &cobra.Command{
	Use:   "milestonesync",
	Short: "Syncs client milestones to Google Calendar and sends reminders",
	Long: `milestonesync mirrors the meeting, ticket-sale and event-day milestones of
client records into Google Calendar and sends chat reminders ahead of each one.

It can run as:
  - A long-running service (serve)
  - An MCP (Model Context Protocol) server for operators and AI assistants (mcp)
  - One-shot commands for sync, reminders, record import and re-authorization`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadDotEnv(envFile)
	},
}

// version will be set by main
var version = "dev"

var (
	envFile   string
	debugMode bool
	logFormat string
)

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "milestonesync version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file to load before reading configuration (missing file is ignored)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging. Overrides LOG_LEVEL.")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json. Overrides LOG_FORMAT.")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMCPCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newRemindCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newRecordsCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// loadConfig reads the environment and applies the global flags.
func loadConfig() Config {
	cfg := configFromEnv()
	if debugMode {
		cfg.LogLevel = "debug"
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	return cfg
}

// newLogger builds the process logger. Logs go to stderr so the stdio MCP
// transport keeps stdout to itself.
func newLogger(cfg Config) *slog.Logger {
	logger := logging.NewLogger(os.Stderr, cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)
	return logger
}
