package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"collab-dashboard/internal/session"

	"github.com/spf13/cobra"
)

var (
	showJSON bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the saved document",
	Long:  `Fetch the durably saved document. Outputs the content by default, or the whole document as JSON with --json.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		doc, err := session.NewAPIClient(serverURL, token).Fetch(ctx)
		if err != nil {
			fatal("Error fetching document", err)
		}

		if showJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(doc); err != nil {
				fatal("Error encoding JSON", err)
			}
			return
		}
		fmt.Println(doc.Content)
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output in JSON format")
}
