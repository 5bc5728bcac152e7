package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/mumblechat/mumble/internal/api"
	"github.com/mumblechat/mumble/internal/client"
	"github.com/spf13/cobra"
)

var nickCmd = &cobra.Command{
	Use:   "nick",
	Short: "Manage local nicknames for members",
}

var nickSetCmd = &cobra.Command{
	Use:   "set <member-id> <nickname...>",
	Short: "Set a nickname",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			return c.SetNick(ctx, args[0], strings.Join(args[1:], " "))
		})
	},
}

var nickGetCmd = &cobra.Command{
	Use:   "get <member-id>",
	Short: "Print a member's nickname",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			nick, err := c.Nick(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(api.NickResponse{Nick: api.Nick{MemberID: args[0], Nickname: nick}, Found: nick != ""})
			}
			if nick == "" {
				return fmt.Errorf("no nickname for %s", args[0])
			}
			fmt.Println(nick)
			return nil
		})
	},
}

var nickListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List nicknames",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			nicks, err := c.Nicks(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(nicks)
			}
			w := newTable()
			for _, n := range nicks {
				row(w, n.MemberID, n.Nickname)
			}
			return w.Flush()
		})
	},
}

var nickRmCmd = &cobra.Command{
	Use:   "rm <member-id>",
	Short: "Delete a nickname",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			deleted, err := c.DeleteNick(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(api.DeleteNickResponse{Deleted: deleted})
			}
			if !deleted {
				fmt.Println("No nickname set.")
			}
			return nil
		})
	},
}

func init() {
	nickCmd.AddCommand(nickSetCmd, nickGetCmd, nickListCmd, nickRmCmd)
	rootCmd.AddCommand(nickCmd)
}
