package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "collab-server",
	Short: "Real-time collaborative document service",
	Long: `collab-server hosts one shared document. Participants connect over a
WebSocket channel, see each other's cursors and receive every accepted edit.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// serve replaces this once the config file is loaded.
		slog.SetDefault(newLogger(os.Getenv("LOG_LEVEL")))
	},
}

// newLogger builds the process logger. --verbose wins over level; an
// unknown level falls back to info.
func newLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	if verbose {
		lvl = slog.LevelDebug
	} else if level != "" {
		if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
			lvl = slog.LevelInfo
		}
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// Execute runs the root command. It is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
}
