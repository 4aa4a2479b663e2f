// Package commands provides the CLI commands for radikari.
package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/valuin/radikari-chat-widget/internal/config"
	"github.com/valuin/radikari-chat-widget/internal/logging"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	printLogs bool
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "radikari",
	Short: "Radikari - embeddable chat widget toolkit",
	Long: `Radikari drives tenant-scoped chat conversations against the
ephemeral threads API: threads are created lazily, replies stream in as
text deltas, and expired threads are recovered transparently.

Run 'radikari chat' for an interactive session, or 'radikari demo' to
start a local stand-in server to chat against.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")

	rootCmd.SetVersionTemplate(fmt.Sprintf("radikari %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(demoCmd)
}

// Execute runs the root command.
func Execute() error {
	// Local .env files are a convenience for development setups.
	_ = godotenv.Load()
	return rootCmd.Execute()
}

// initLogging configures the global logger from the flags and the loaded
// configuration. The config file's logLevel applies unless --log-level
// was given explicitly.
func initLogging(cmd *cobra.Command, cfg *config.Config) {
	level := logLevel
	if !cmd.Flags().Changed("log-level") && cfg.LogLevel != "" {
		level = cfg.LogLevel
	}

	var out io.Writer = io.Discard
	if printLogs {
		out = os.Stderr
	}
	logging.Init(logging.Config{
		Level:  logging.ParseLevel(level),
		Output: out,
		Pretty: true,
	})
}

// loadConfig resolves configuration from the current working directory.
func loadConfig() (*config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return config.Load(cwd)
}
