package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mumblechat/mumble/internal/api"
	"github.com/mumblechat/mumble/internal/client"
	"github.com/spf13/cobra"
)

var (
	syncConversation string
	syncAll          bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull the conversation list, one conversation's messages, or everything",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			resp, err := c.Sync(ctx, api.SyncRequest{ConversationID: syncConversation, All: syncAll})
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(resp)
			}
			w := newTable()
			row(w, "SCOPE", "MODE", "FETCHED", "INSERTED", "TOOK")
			for _, r := range resp.Results {
				mode := "incremental"
				if r.Full {
					mode = "full"
				}
				if r.Discarded {
					mode += " (discarded)"
				}
				row(w, r.Scope, mode, r.Fetched, r.Inserted, time.Duration(r.DurationMs)*time.Millisecond)
			}
			return w.Flush()
		})
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show running pulls, polled conversations and the cursor",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			resp, err := c.SyncStatus(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(resp)
			}
			cursor := "unset"
			if resp.CursorSet {
				cursor = formatNS(resp.Cursor)
			}
			fmt.Printf("Cursor:  %s\n", cursor)
			fmt.Printf("Active:  %s\n", joinOrNone(resp.Active))
			fmt.Printf("Watched: %s\n", joinOrNone(resp.Watched))
			return nil
		})
	},
}

func joinOrNone(s []string) string {
	if len(s) == 0 {
		return "none"
	}
	return strings.Join(s, ", ")
}

func init() {
	syncCmd.Flags().StringVar(&syncConversation, "conversation", "", "pull messages of one conversation")
	syncCmd.Flags().BoolVar(&syncAll, "all", false, "pull conversations and every conversation's messages")
	syncCmd.MarkFlagsMutuallyExclusive("conversation", "all")
	syncCmd.AddCommand(syncStatusCmd)
	rootCmd.AddCommand(syncCmd)
}
