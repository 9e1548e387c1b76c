// Package main provides the entry point for the mkproxy CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for mkproxy.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mkproxy",
		Short: "Rotating Tor circuit pool with a local forwarding proxy",
		Long: `mkproxy runs a pool of independent Tor circuits and exposes them
through a single local HTTP/HTTPS proxy. Traffic always exits through
the pool's active circuit; rotating switches new connections to a
different circuit (or renews the identity when the pool has one
instance) without interrupting connections already in flight.

Rotation can be requested three ways: the rotate subcommand, an HTTP
GET /rotate against the running proxy, or the auto-rotation timer.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .mkproxy.yaml in current or home directory)")

	// Add subcommands
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewRotateCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
