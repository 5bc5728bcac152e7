package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/mumblechat/mumble/internal/api"
	"github.com/mumblechat/mumble/internal/client"
	"github.com/spf13/cobra"
)

var (
	convQuery     string
	convKind      string
	messagesLimit int
	groupName     string
	groupDesc     string
	groupMembers  []string
)

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"ls"},
	Short:   "List conversations, most recent first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			convs, err := c.Conversations(ctx, convQuery, convKind)
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(convs)
			}
			if len(convs) == 0 {
				fmt.Println("No conversations.")
				return nil
			}
			w := newTable()
			row(w, "ID", "KIND", "NAME", "MEMBERS", "CREATED", "LAST")
			for _, conv := range convs {
				name := sanitize(conv.DisplayName)
				if conv.Muted {
					name += " (muted)"
				}
				row(w, conv.ID, conv.Kind, name, conv.MemberCount, formatNS(conv.CreatedAt), preview(conv.LastMessage))
			}
			return w.Flush()
		})
	},
}

var showCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Show one conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			conv, err := c.Conversation(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(conv)
			}
			printConversation(conv)
			return nil
		})
	},
}

func printConversation(conv *api.Conversation) {
	fmt.Printf("ID:      %s\n", conv.ID)
	fmt.Printf("Kind:    %s\n", conv.Kind)
	fmt.Printf("Name:    %s\n", sanitize(conv.DisplayName))
	if conv.Description != "" {
		fmt.Printf("About:   %s\n", sanitize(conv.Description))
	}
	fmt.Printf("Created: %s\n", formatNS(conv.CreatedAt))
	fmt.Printf("Muted:   %v\n", conv.Muted)
	fmt.Printf("Members: %d\n", conv.MemberCount)
	for _, m := range conv.Members {
		fmt.Printf("  %s\n", m)
	}
	if conv.LastMessage != nil {
		fmt.Print("Last:    ")
		printMessage(*conv.LastMessage)
	}
}

var messagesCmd = &cobra.Command{
	Use:   "messages <conversation-id>",
	Short: "Print a conversation's mirrored messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			msgs, err := c.Messages(ctx, args[0], messagesLimit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(msgs)
			}
			for _, m := range msgs {
				printMessage(m)
			}
			return nil
		})
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <conversation-id> <text...>",
	Short: "Queue a text message",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			id, err := c.SendText(ctx, args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(api.SendResponse{ClientMsgID: id})
			}
			fmt.Printf("Queued %s\n", id)
			return nil
		})
	},
}

var outboxCmd = &cobra.Command{
	Use:   "outbox <client-msg-id>",
	Short: "Show the delivery state of a queued message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			e, err := c.OutboxEntry(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(e)
			}
			fmt.Printf("%s %s (attempts %d)", e.ClientMsgID, e.Status, e.Attempts)
			if e.ServerMsgID != "" {
				fmt.Printf(" -> %s", e.ServerMsgID)
			}
			if e.Error != "" {
				fmt.Printf(": %s", e.Error)
			}
			fmt.Println()
			return nil
		})
	},
}

var dmCmd = &cobra.Command{
	Use:   "dm <member-id>",
	Short: "Open a direct conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			conv, err := c.CreateDirect(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(conv)
			}
			printConversation(conv)
			return nil
		})
	},
}

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Create a group conversation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			conv, err := c.CreateGroup(ctx, api.CreateGroupRequest{
				MemberIDs:   groupMembers,
				Name:        groupName,
				Description: groupDesc,
			})
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(conv)
			}
			printConversation(conv)
			return nil
		})
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <conversation-id>",
	Short: "Drop a conversation from the mirror",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			removed, err := c.RemoveConversation(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(api.RemoveResponse{Removed: removed})
			}
			if !removed {
				fmt.Println("Not in the mirror.")
				return nil
			}
			fmt.Println("Removed.")
			return nil
		})
	},
}

func muteCommand(use string, muted bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <conversation-id>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " notifications for a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *client.Client) error {
				if err := c.SetMuted(ctx, args[0], muted); err != nil {
					return err
				}
				if jsonOutput {
					return outputJSON(api.MuteResponse{Muted: muted})
				}
				fmt.Printf("%s: muted=%v\n", args[0], muted)
				return nil
			})
		},
	}
}

var focusCmd = &cobra.Command{
	Use:   "focus <conversation-id>",
	Short: "Follow a conversation's new messages until interrupted",
	Long: "Prints new messages as they arrive. While focused the conversation is\n" +
		"polled as a backstop and its notifications are suppressed.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStream(func(ctx context.Context, c *client.Client) error {
			return c.Focus(ctx, args[0], func(m api.Message) error {
				if jsonOutput {
					return outputJSON(m)
				}
				printMessage(m)
				return nil
			})
		})
	},
}

func init() {
	conversationsCmd.Flags().StringVarP(&convQuery, "query", "q", "", "filter by name, id, member or nickname")
	conversationsCmd.Flags().StringVar(&convKind, "kind", "", "filter by kind (direct or group)")
	messagesCmd.Flags().IntVarP(&messagesLimit, "limit", "n", 0, "only the most recent N messages")
	groupCmd.Flags().StringVar(&groupName, "name", "", "group name")
	groupCmd.Flags().StringVar(&groupDesc, "description", "", "group description")
	groupCmd.Flags().StringSliceVarP(&groupMembers, "member", "m", nil, "member id (repeatable)")
	_ = groupCmd.MarkFlagRequired("member")

	rootCmd.AddCommand(
		conversationsCmd, showCmd, messagesCmd, sendCmd, outboxCmd,
		dmCmd, groupCmd, rmCmd,
		muteCommand("mute", true), muteCommand("unmute", false),
		focusCmd,
	)
}
