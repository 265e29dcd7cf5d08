package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/labsession/internal/app"
	"github.com/aussiebroadwan/labsession/pkg/session"
)

func newWatchCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the session open and report idle warnings",
		Long: `Hold the session in the foreground. Every line read from stdin counts as
user activity; the line "extend" answers an idle warning. Notifications are
printed as they arrive. Returns when the session ends or stdin closes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			notes := session.NewChannelNotifier(16)
			activity := make(chan struct{}, 1)

			application, err := root.open(ctx, app.WithNotifier(notes), app.WithActivity(activity))
			if err != nil {
				return err
			}
			defer application.Close()

			ctrl := application.Controller()
			if !ctrl.IsAuthenticated() {
				return session.ErrNotAuthenticated
			}

			out := cmd.OutOrStdout()
			p, _ := ctrl.Principal()
			fmt.Fprintf(out, "Watching session for %s\n", p.Username)

			lines := make(chan string)
			go readLines(ctx, cmd.InOrStdin(), lines)

			poll := time.NewTicker(time.Second)
			defer poll.Stop()

			for {
				select {
				case <-ctx.Done():
					return nil
				case n := <-notes.C:
					printNotification(out, n)
				case line, ok := <-lines:
					if !ok {
						return nil
					}
					if strings.TrimSpace(line) == "extend" {
						ctrl.ExtendSession()
						fmt.Fprintln(out, "Session extended")
						continue
					}
					select {
					case activity <- struct{}{}:
					default:
					}
				case <-poll.C:
					if !ctrl.IsAuthenticated() {
						drain(out, notes)
						fmt.Fprintln(out, "Session ended")
						return nil
					}
				}
			}
		},
	}
	return cmd
}

func readLines(ctx context.Context, r io.Reader, lines chan<- string) {
	defer close(lines)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		select {
		case lines <- sc.Text():
		case <-ctx.Done():
			return
		}
	}
}

func drain(out io.Writer, notes *session.ChannelNotifier) {
	for {
		select {
		case n := <-notes.C:
			printNotification(out, n)
		default:
			return
		}
	}
}

func printNotification(out io.Writer, n session.Notification) {
	if n.Kind == session.KindIdleWarning && !n.Deadline.IsZero() {
		fmt.Fprintf(out, "[%s] %s (ends at %s, type \"extend\" to continue)\n",
			n.Severity, n.Message, n.Deadline.Local().Format(time.TimeOnly))
		return
	}
	fmt.Fprintf(out, "[%s] %s\n", n.Severity, n.Message)
}
