package main

import (
	"context"
	"fmt"

	"github.com/mumblechat/mumble/internal/api"
	"github.com/mumblechat/mumble/internal/client"
	"github.com/spf13/cobra"
)

var installationsCmd = &cobra.Command{
	Use:   "installations",
	Short: "Manage the inbox's installations",
}

var installationsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List installations, current first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			list, err := c.Installations(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(list)
			}
			w := newTable()
			row(w, "ID", "CREATED", "")
			for _, inst := range list {
				mark := ""
				if inst.Current {
					mark = "current"
				}
				row(w, inst.ID, formatNS(inst.CreatedAt), mark)
			}
			return w.Flush()
		})
	},
}

var revokeOthersCmd = &cobra.Command{
	Use:   "revoke-others",
	Short: "Revoke every installation except this one",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			revoked, err := c.RevokeOtherInstallations(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(api.RevokeOthersResponse{Revoked: revoked})
			}
			fmt.Printf("Revoked %d installation(s).\n", len(revoked))
			return nil
		})
	},
}

func init() {
	installationsCmd.AddCommand(installationsListCmd, revokeOthersCmd)
	rootCmd.AddCommand(installationsCmd)
}
