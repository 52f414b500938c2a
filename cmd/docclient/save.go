package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"collab-dashboard/internal/document"
	"collab-dashboard/internal/rbac"
	"collab-dashboard/internal/session"

	"github.com/spf13/cobra"
)

var (
	saveTitle string
)

var saveCmd = &cobra.Command{
	Use:   "save [file]",
	Short: "Save document content",
	Long:  `Replace the saved document with the content of file, or stdin when no file is given.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := identity()
		if !rbac.Can(id.Role, rbac.ActionSave) {
			fatal("Error saving document", errors.New(session.ReadOnlyNotice))
		}

		var in io.Reader = os.Stdin
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				fatal("Error opening file", err)
			}
			defer f.Close()
			in = f
		}
		content, err := io.ReadAll(in)
		if err != nil {
			fatal("Error reading content", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err = session.NewAPIClient(serverURL, token).Save(ctx, document.Document{
			Title:        saveTitle,
			Content:      string(content),
			LastEditedBy: id.User,
			LastUpdated:  time.Now().Format(document.TimeLayout),
		})
		if err != nil {
			fatal("Error saving document", err)
		}
		fmt.Fprintln(os.Stderr, session.SavedNotice)
	},
}

func init() {
	rootCmd.AddCommand(saveCmd)
	saveCmd.Flags().StringVar(&saveTitle, "title", document.DefaultTitle, "Document title")
}
