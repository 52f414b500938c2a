package main

import (
	"fmt"
	"time"

	"collab-dashboard/internal/auth"
	"collab-dashboard/internal/config"
	"collab-dashboard/internal/rbac"

	"github.com/spf13/cobra"
)

var (
	tokenRole string
	tokenTTL  time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token [user]",
	Short: "Mint an identity token",
	Long:  `Sign an identity token for user with the configured JWT secret. Pass it to clients as ?token= or a Bearer header.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fatal("Error loading config", err)
		}
		token, err := auth.New(cfg.JWTSecret, tokenTTL).IssueToken(rbac.Identity{
			User: args[0],
			Role: rbac.Normalize(tokenRole),
		})
		if err != nil {
			fatal("Error issuing token", err)
		}
		fmt.Println(token)
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(rbac.RoleEditor), "Role: Admin, Editor or Viewer")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", auth.DefaultTTL, "Token lifetime")
}
