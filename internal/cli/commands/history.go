package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/hippocampushub/hubportal/internal/cli/ui"
	"github.com/hippocampushub/hubportal/internal/history"
)

// NewHistoryCommand creates the history command
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [session-id]",
		Short: "Show recorded navigation history",
		Long: `Show the navigation steps recorded in the history store.

With a session id, every step of that session is listed oldest first.
Without one, the most recent steps across all sessions are listed newest
first.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistory,
	}
	addJSONFlag(cmd)
	cmd.Flags().Int("limit", 20, "Number of recent steps to show")
	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	nc := noColor(cmd)
	if !a.cfg.History.Enabled {
		fmt.Fprint(out, ui.Warning("history is disabled", []string{"history.enabled: true"}, nc))
		return nil
	}

	store, err := a.history(cmd.Context())
	if err != nil {
		return err
	}

	var records []history.Record
	if len(args) == 1 {
		records, err = store.List(cmd.Context(), args[0])
	} else {
		limit, _ := cmd.Flags().GetInt("limit")
		if limit < 1 {
			return fmt.Errorf("--limit must be positive, got %d", limit)
		}
		records, err = store.Recent(cmd.Context(), limit)
	}
	if err != nil {
		return err
	}

	if asJSON(cmd) {
		return writeJSON(out, records)
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "No navigation recorded")
		return nil
	}

	table := ui.NewTable(out, []string{"Time", "Session", "Version", "Kind", "View", "Query"}, &ui.TableOptions{NoColor: nc})
	for _, r := range records {
		table.AddRow(
			r.CreatedAt.Local().Format(time.DateTime),
			r.SessionID,
			strconv.FormatUint(r.Version, 10),
			r.Kind,
			r.View,
			r.Query,
		)
	}
	table.Render()
	return nil
}
