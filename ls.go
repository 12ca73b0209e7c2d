package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// Experience state constants for list display.
const (
	stateSynced  = "synced"
	stateOffline = "offline"
	statePending = "pending entries"
	stateError   = "error"
)

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List experiences",
		Long: `List all cached experiences in index order, with their sync state:
synced, offline (created locally, not yet uploaded), pending entries
(permanent experience with offline entries), or error (last upload was
rejected).`,
		Args: cobra.NoArgs,
		RunE: runLs,
	}
}

// lsRow is one experience in the listing.
type lsRow struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Entries int    `json:"entries"`
	State   string `json:"state"`
	Updated string `json:"updated"`
}

func runLs(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	a, err := openApp(cc)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()

	ids, err := a.resolver.Experiences().IndexIDs(ctx)
	if err != nil {
		return err
	}

	rows := make([]lsRow, 0, len(ids))

	for _, id := range ids {
		exp, err := a.resolver.Experiences().Get(ctx, id)
		if err != nil {
			return err
		}

		if exp == nil {
			continue
		}

		state := stateSynced

		switch {
		case exp.SyncFailure != nil:
			state = stateError
		case exp.IsOffline():
			state = stateOffline
		case len(exp.OfflineEntries()) > 0:
			state = statePending
		}

		rows = append(rows, lsRow{
			ID:      id.String(),
			Title:   exp.Title,
			Entries: len(exp.Entries),
			State:   state,
			Updated: formatTime(exp.UpdatedAt),
		})
	}

	if cc.Flags.JSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")

		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		cc.Statusf("No experiences. Create one with 'fieldnote new'.\n")

		return nil
	}

	headers := []string{"ID", "TITLE", "ENTRIES", "STATE", "UPDATED"}

	table := make([][]string, len(rows))
	for i, r := range rows {
		table[i] = []string{r.ID, r.Title, fmt.Sprintf("%d", r.Entries), r.State, r.Updated}
	}

	printTable(cmd.OutOrStdout(), headers, table)

	return nil
}
