package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mumblechat/mumble/internal/client"
	"github.com/mumblechat/mumble/internal/lock"
	"github.com/mumblechat/mumble/internal/session"
	"github.com/spf13/cobra"
)

var (
	sessionFlag string
	jsonOutput  bool
	timeoutFlag time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "mumblectl",
	Short:         "Control a running mumbled",
	Long:          "mumblectl talks to the mumbled daemon of one session over its Unix socket.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&sessionFlag, "session", "", "session name (overrides config default)")
	pf.BoolVar(&jsonOutput, "json", false, "output in JSON format")
	pf.DurationVar(&timeoutFlag, "timeout", 10*time.Second, "deadline for unary calls")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// dial resolves the session and connects to its daemon.
func dial() (*client.Client, string, error) {
	name := session.Resolve(sessionFlag)
	if err := session.ValidateName(name); err != nil {
		return nil, "", err
	}
	if lock.Probe(session.Dir(name)) == nil {
		return nil, "", fmt.Errorf("mumbled is not running for session %q (start it with: mumbled --session %s)", name, name)
	}
	c, err := client.New(session.SocketPath(name))
	if err != nil {
		return nil, "", fmt.Errorf("cannot connect to daemon for session %q: %w", name, err)
	}
	return c, name, nil
}

// withClient runs fn with a connected client and the unary call deadline.
func withClient(fn func(ctx context.Context, c *client.Client) error) error {
	c, _, err := dial()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), timeoutFlag)
	defer cancel()
	return fn(ctx, c)
}

// withStream is withClient for long-lived streams: no deadline, and an
// interrupt ends the stream cleanly.
func withStream(fn func(ctx context.Context, c *client.Client) error) error {
	c, _, err := dial()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	err = fn(ctx, c)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
