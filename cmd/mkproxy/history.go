package main

import (
	"github.com/spf13/cobra"

	"github.com/developermelih/mk-proxy-generator/internal/history"
	"github.com/developermelih/mk-proxy-generator/internal/report"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded rotations",
		Long: `History reads the rotation history database and prints past
rotations, newest first: which instance became active, the exit IP
before and after, and whether the rotation was manual or scheduled.

The database is read directly, so history works whether or not the
proxy is currently running.

Examples:
  # Last 20 rotations
  mkproxy history

  # Everything, as markdown
  mkproxy history --limit 0 --format markdown`,
		Args: cobra.NoArgs,
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "l", 20,
		"Maximum rotations to show (0 shows all)")
	cmd.Flags().StringP("format", "f", string(report.FormatTable),
		"Output format: table, markdown, or json")
	cmd.Flags().String("db", "",
		"Rotation history directory (default: history_db from config)")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	writer, err := report.NewWriter(report.Format(format), cmd.OutOrStdout())
	if err != nil {
		return err
	}

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}

	dbDir, err := cmd.Flags().GetString("db")
	if err != nil {
		return err
	}
	if dbDir == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		dbDir = cfg.HistoryDB
	}

	// Reading must not create an empty database in a mistyped location.
	db, err := history.Open(dbDir, history.Options{EnableWAL: true})
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	records, err := db.Recent(cmd.Context(), limit)
	if err != nil {
		return err
	}
	return writer.WriteHistory(records)
}
