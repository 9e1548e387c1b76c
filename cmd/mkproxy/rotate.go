package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/developermelih/mk-proxy-generator/internal/model"
)

// NewRotateCmd creates the rotate command.
func NewRotateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Switch the running proxy to a different circuit",
		Long: `Rotate asks the running proxy to switch new connections to a
different circuit. With a single-instance pool the circuit's identity
is renewed in place instead.

The command blocks until the rotation completes and prints the new
active exit identity. Connections already in flight keep their circuit.

Examples:
  # Rotate the proxy started by mkproxy serve
  mkproxy rotate

  # Rotate a proxy on a non-default port
  mkproxy rotate --addr 127.0.0.1:3128`,
		Args: cobra.NoArgs,
		RunE: runRotateCmd,
	}

	addControlFlags(cmd)
	return cmd
}

// runRotateCmd executes the rotate command.
func runRotateCmd(cmd *cobra.Command, _ []string) error {
	addr, err := controlAddr(cmd)
	if err != nil {
		return err
	}

	var info model.ActiveInfo
	if err := controlGet(cmd.Context(), addr, "/rotate", &info); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "rotated: instance %d, exit %s (%s)\n",
		info.ID, info.IP, info.Country)
	return nil
}
