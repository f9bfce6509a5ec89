package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "laxpress",
	Short: "Laxpress renders article and feed pages from lax templates",
	Long: `Laxpress serves a SQLite content store through a directory of lax templates,
with an authenticated management API, a Redis page cache and Prometheus metrics.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of laxpress",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "laxpress %s (commit %s, built %s)\n", Version, Commit, BuildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "Override the log level (debug, info, warn, error)")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// parseLogLevel maps a config log level to slog. Unknown levels are info.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newLogger builds the process logger. A non-empty flag value overrides the
// configured level.
func newLogger(cmd *cobra.Command, configured string) *slog.Logger {
	level := configured
	if flag, _ := cmd.Flags().GetString("log-level"); flag != "" {
		level = flag
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(level)}))
}
