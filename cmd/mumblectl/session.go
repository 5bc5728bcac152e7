package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mumblechat/mumble/internal/api"
	"github.com/mumblechat/mumble/internal/client"
	"github.com/mumblechat/mumble/internal/lock"
	"github.com/mumblechat/mumble/internal/session"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			resp, err := c.Status(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(resp)
			}
			fmt.Printf("Session:       %s\n", resp.Session)
			fmt.Printf("Status:        %s\n", resp.Status)
			fmt.Printf("Inbox:         %s\n", resp.SelfID)
			fmt.Printf("Source:        %s\n", resp.Source)
			fmt.Printf("Live:          %v\n", resp.Live)
			fmt.Printf("Conversations: %d\n", resp.Conversations)
			fmt.Printf("Uptime:        %s\n", (time.Duration(resp.UptimeMs) * time.Millisecond).Round(time.Second))
			if resp.DroppedEvents > 0 {
				fmt.Printf("Dropped:       %d events (slow subscribers)\n", resp.DroppedEvents)
			}
			return nil
		})
	},
}

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect the account and run a full sync",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			resp, err := c.Connect(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(resp)
			}
			fmt.Printf("Connected. Status: %s\n", resp.Status)
			return nil
		})
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Disconnect the account and clear the mirror",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			resp, err := c.Disconnect(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(resp)
			}
			fmt.Printf("Disconnected. Status: %s\n", resp.Status)
			return nil
		})
	},
}

var watchPrefixes []string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream daemon events until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStream(func(ctx context.Context, c *client.Client) error {
			return c.WatchEvents(ctx, watchPrefixes, func(e api.EventEnvelope) error {
				if jsonOutput {
					return outputJSON(e)
				}
				fmt.Printf("%s %-28s %v\n", time.UnixMilli(e.OccurredAtMs).Format("15:04:05.000"), e.Kind, e.Payload)
				return nil
			})
		})
	},
}

type sessionRow struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Running bool      `json:"running"`
	PID     int       `json:"pid,omitempty"`
	Since   time.Time `json:"since,omitzero"`
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List known sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := session.List()
		if err != nil {
			return err
		}
		rows := make([]sessionRow, 0, len(names))
		for _, n := range names {
			r := sessionRow{Name: n, Path: session.Dir(n)}
			if err := lock.Probe(r.Path); err != nil {
				r.Running = true
				var held *lock.LockHeldError
				if errors.As(err, &held) {
					r.PID, r.Since = held.PID, held.Since
				}
			}
			rows = append(rows, r)
		}
		if jsonOutput {
			return outputJSON(rows)
		}
		if len(rows) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}
		w := newTable()
		row(w, "SESSION", "STATE", "PID", "SINCE", "PATH")
		for _, r := range rows {
			state, pid, since := "stopped", "-", "-"
			if r.Running {
				state = "running"
				if r.PID > 0 {
					pid = fmt.Sprint(r.PID)
				}
				if !r.Since.IsZero() {
					since = r.Since.Local().Format("2006-01-02 15:04:05")
				}
			}
			row(w, r.Name, state, pid, since, r.Path)
		}
		return w.Flush()
	},
}

func init() {
	watchCmd.Flags().StringSliceVar(&watchPrefixes, "prefix", nil, "only events whose kind starts with this prefix (repeatable)")
	rootCmd.AddCommand(statusCmd, connectCmd, disconnectCmd, watchCmd, sessionsCmd)
}
