package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"collab-dashboard/internal/channel"
	"collab-dashboard/internal/message"
	"collab-dashboard/internal/session"

	"github.com/spf13/cobra"
)

const watchHelp = `Lines you type are appended to the document. Commands:
  /save         save the document
  /cursor N     report your cursor at offset N
  /show         print the document
  /users        list who is online
  /quit         leave`

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Join the live document",
	Long:  "Open a live channel to the document and edit it from the terminal.\n\n" + watchHelp,
	Run: func(cmd *cobra.Command, args []string) {
		target, err := channelURL()
		if err != nil {
			fatal("Error building channel url", err)
		}

		id := identity()
		logger := slog.Default()
		var opts []channel.Option
		opts = append(opts, channel.WithLogger(logger))
		if token != "" {
			opts = append(opts, channel.WithToken(token))
		}

		var view *session.View
		view = session.NewView(id, channel.New(target, opts...), session.NewAPIClient(serverURL, token),
			session.WithLogger(logger),
			session.WithNotifier(session.NotifierFunc(func(n session.Notice) {
				fmt.Fprintf(os.Stderr, "[%s] %s\n", n.Level, n.Text)
			})),
			session.WithOnChange(func(msg message.Message) {
				switch m := msg.(type) {
				case message.Init:
					fmt.Printf("--- %s ---\n%s\n", m.Document.Title, m.Document.Content)
					fmt.Printf("online: %s\n", strings.Join(message.Users(m.Users), ", "))
				case message.Update:
					fmt.Printf("--- updated by %s at %s ---\n%s\n", m.LastEditedBy, m.LastUpdated, m.Content)
				case message.Presence:
					fmt.Printf("online: %s\n", strings.Join(view.Presence().UsersOnline(), ", "))
				}
			}),
		)

		if err := view.Mount(); err != nil {
			fatal("Error opening channel", err)
		}
		defer view.Unmount()

		if id.ReadOnly() {
			fmt.Fprintln(os.Stderr, "Read-only mode: you are viewing this document as a Viewer.")
		}
		fmt.Fprintln(os.Stderr, watchHelp)

		lines := make(chan string)
		go func() {
			defer close(lines)
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				lines <- scanner.Text()
			}
		}()

		exit := make(chan os.Signal, 1)
		signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)

		for {
			select {
			case sig := <-exit:
				logger.Info("signal caught", "sig", sig)
				return
			case line, ok := <-lines:
				if !ok || runCommand(view, line) {
					return
				}
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

// runCommand handles one input line and reports whether the user asked to
// leave.
func runCommand(view *session.View, line string) bool {
	state := view.State()
	fields := strings.Fields(line)

	switch {
	case len(fields) > 0 && fields[0] == "/quit":
		return true
	case len(fields) > 0 && fields[0] == "/save":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = state.Save(ctx)
	case len(fields) == 2 && fields[0] == "/cursor":
		pos, err := strconv.Atoi(fields[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "bad offset %q\n", fields[1])
			return false
		}
		if err := state.MoveCursor(pos); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	case len(fields) > 0 && fields[0] == "/show":
		fmt.Println(state.Content())
	case len(fields) > 0 && fields[0] == "/users":
		for _, p := range view.Presence().Participants() {
			if p.Cursor != nil {
				fmt.Printf("%s @%d\n", p.User, *p.Cursor)
			} else {
				fmt.Println(p.User)
			}
		}
	default:
		if view.ChannelState() != channel.Open {
			fmt.Fprintln(os.Stderr, "offline: edit kept locally and may be overwritten")
		}
		_ = state.Edit(state.Content() + "\n" + line)
	}
	return false
}
