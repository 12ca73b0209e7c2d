package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"fieldnote/internal/cache"
	"fieldnote/internal/noteid"
	"fieldnote/internal/resolver"
)

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <experience-id>",
		Short: "Show one experience with its entries",
		Long: `Display an experience and all of its entries. Tolerates the window right
after startup where the cache is still restoring: the read waits briefly
for the restore before falling back to a direct fetch.`,
		Args: cobra.ExactArgs(1),
		RunE: runShow,
	}
}

func runShow(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	a, err := openApp(cc)
	if err != nil {
		return err
	}
	defer a.Close()

	exp, err := a.resolver.GetExperienceEventually(cmd.Context(), noteid.New(args[0]))
	if errors.Is(err, resolver.ErrNotFound) {
		return fmt.Errorf("no experience %q — check 'fieldnote ls'", args[0])
	}

	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")

		return enc.Encode(exp)
	}

	printExperience(cmd, exp)

	return nil
}

func printExperience(cmd *cobra.Command, exp *cache.Experience) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "%s (%s)\n", exp.Title, exp.ID)

	if exp.Description != "" {
		fmt.Fprintln(out, exp.Description)
	}

	if exp.SyncFailure != nil {
		fmt.Fprintf(out, "upload rejected: %s\n", formatFailure(exp.SyncFailure))
	}

	fmt.Fprintf(out, "updated %s, %d entries\n", formatTime(exp.UpdatedAt), len(exp.Entries))

	for _, entry := range exp.Entries {
		fmt.Fprintf(out, "\n  %s  %s", entry.ID, formatTime(entry.InsertedAt))

		if entry.ID.IsOffline() {
			fmt.Fprint(out, "  (not uploaded)")
		}

		fmt.Fprintln(out)

		for _, d := range entry.Data {
			fmt.Fprintf(out, "    %s: %s\n", d.FieldName, d.Value)
		}

		if entry.SyncFailure != nil {
			fmt.Fprintf(out, "    upload rejected: %s\n", formatFailure(entry.SyncFailure))
		}
	}
}

// formatFailure renders field-level upload errors on one line.
func formatFailure(f *cache.SyncFailure) string {
	parts := make([]string, 0, len(f.Errors))

	for field, msg := range f.Errors {
		if field == "" {
			parts = append(parts, msg)

			continue
		}

		parts = append(parts, fmt.Sprintf("%s %s", field, msg))
	}

	sort.Strings(parts)

	return strings.Join(parts, "; ")
}
