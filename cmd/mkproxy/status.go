package main

import (
	"github.com/spf13/cobra"

	"github.com/developermelih/mk-proxy-generator/internal/model"
	"github.com/developermelih/mk-proxy-generator/internal/report"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the instance table of the running proxy",
		Long: `Status queries the running proxy for its instance table: every
circuit's lifecycle state, SOCKS port, exit IP, and country, with the
active circuit marked.

Examples:
  # Table output for the terminal
  mkproxy status

  # JSON for scripting
  mkproxy status --format json`,
		Args: cobra.NoArgs,
		RunE: runStatusCmd,
	}

	addControlFlags(cmd)
	cmd.Flags().StringP("format", "f", string(report.FormatTable),
		"Output format: table, markdown, or json")

	return cmd
}

// runStatusCmd executes the status command.
func runStatusCmd(cmd *cobra.Command, _ []string) error {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	writer, err := report.NewWriter(report.Format(format), cmd.OutOrStdout())
	if err != nil {
		return err
	}

	addr, err := controlAddr(cmd)
	if err != nil {
		return err
	}

	var views []model.InstanceView
	if err := controlGet(cmd.Context(), addr, "/status", &views); err != nil {
		return err
	}

	return writer.WriteStatus(views)
}
