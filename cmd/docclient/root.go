package main

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"collab-dashboard/internal/rbac"

	"github.com/spf13/cobra"
)

var (
	verbose   bool
	serverURL string
	userName  string
	roleName  string
	token     string
)

var rootCmd = &cobra.Command{
	Use:   "docclient",
	Short: "Terminal client for the collaborative document",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
	},
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
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("COLLAB_SERVER", "http://localhost:8000"), "Service base URL")
	rootCmd.PersistentFlags().StringVarP(&userName, "user", "u", envOr("COLLAB_USER", "editor123"), "Username")
	rootCmd.PersistentFlags().StringVarP(&roleName, "role", "r", envOr("COLLAB_ROLE", string(rbac.RoleEditor)), "Role: Admin, Editor or Viewer")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("COLLAB_TOKEN"), "Identity token")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func identity() rbac.Identity {
	return rbac.Identity{User: userName, Role: rbac.Normalize(roleName)}
}

// channelURL maps the service base URL onto its WebSocket endpoint.
func channelURL() (string, error) {
	u, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.JoinPath("ws", "document").String(), nil
}
