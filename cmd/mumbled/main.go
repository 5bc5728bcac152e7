package main

import (
	"fmt"
	"os"

	"github.com/mumblechat/mumble/internal/daemon"
	"github.com/mumblechat/mumble/internal/session"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var sessionFlag string

var rootCmd = &cobra.Command{
	Use:   "mumbled",
	Short: "Mumble conversation mirror daemon",
	Long: "mumbled keeps an in-memory mirror of one inbox's conversations and serves it\n" +
		"to local clients over a Unix socket in the session directory.",
	SilenceUsage: true,
	Args:         cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionName := session.Resolve(sessionFlag)
		if err := session.ValidateName(sessionName); err != nil {
			return err
		}
		app := fx.New(
			daemon.Module(daemon.Params{SessionName: sessionName}),
		)
		if err := app.Err(); err != nil {
			return err
		}
		app.Run()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&sessionFlag, "session", "", "session name (overrides config default)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
