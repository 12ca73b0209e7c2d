package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"fieldnote/internal/cache"
	"fieldnote/internal/noteid"
	"fieldnote/internal/resolver"
)

func newEntryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "entry <experience-id> [field=value...]",
		Short: "Add an entry to an experience",
		Long: `Append a new entry to an experience. The entry is created offline with
the given field values; it is uploaded (and receives its permanent
identifier) the next time 'fieldnote upload' runs.

Examples:
  fieldnote entry exp-42 hours=7.5 quality=good
  fieldnote entry offline:1700000000-3 pace=5:30`,
		Args: cobra.MinimumNArgs(1),
		RunE: runEntry,
	}
}

func runEntry(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	a, err := openApp(cc)
	if err != nil {
		return err
	}
	defer a.Close()

	var data []cache.DataObject

	if len(args) > 1 {
		data, err = parseDataObjects(strings.Join(args[1:], ","))
		if err != nil {
			return err
		}
	}

	parentID := noteid.New(args[0])

	entry, parent, err := a.resolver.CreateOfflineEntry(cmd.Context(), parentID, data)
	if errors.Is(err, resolver.ErrNotFound) {
		return fmt.Errorf("no experience %q — check 'fieldnote ls'", args[0])
	}

	if err != nil {
		return err
	}

	cc.Statusf("Added entry %s to %q (%d entries)\n", entry.ID, parent.Title, len(parent.Entries))
	fmt.Fprintln(cmd.OutOrStdout(), entry.ID)

	return nil
}
