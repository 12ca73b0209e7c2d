package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"fieldnote/internal/userfile"
)

// Connectivity mode constants for status reporting.
const (
	modeAuto   = "auto"
	modeManual = "manual"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show login, connectivity mode, and unsynced items",
		Long: `Display the logged-in user, the connectivity mode (auto, or a manual
override set with 'fieldnote offline'/'fieldnote online'), and everything
awaiting upload.`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}
}

// statusReport is the machine-readable status shape.
type statusReport struct {
	User             *userfile.User `json:"user,omitempty"`
	ConnectivityMode string         `json:"connectivity_mode"`
	ForcedConnected  *bool          `json:"forced_connected,omitempty"`
	UnsyncedCount    int            `json:"unsynced_count"`
	Unsynced         []statusItem   `json:"unsynced,omitempty"`
}

// statusItem is one unsynced experience in the report.
type statusItem struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	EntriesOffline int    `json:"entries_offline"`
	WhollyOffline  bool   `json:"wholly_offline"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	a, err := openApp(cc)
	if err != nil {
		return err
	}
	defer a.Close()

	report := statusReport{ConnectivityMode: modeAuto}

	uf, err := userfile.Load(a.userPath)
	if err != nil {
		return err
	}

	if uf != nil {
		report.User = uf.User

		if uf.Connectivity != nil {
			report.ConnectivityMode = modeManual
			report.ForcedConnected = &uf.Connectivity.Connected
		}
	}

	set, err := a.resolver.Unsynced(cmd.Context())
	if err != nil {
		return err
	}

	report.UnsyncedCount = set.Count()

	for _, e := range set.Offline {
		report.Unsynced = append(report.Unsynced, statusItem{
			ID: e.ID, Title: e.Title, EntriesOffline: e.EntriesOffline, WhollyOffline: true,
		})
	}

	for _, e := range set.PartOffline {
		report.Unsynced = append(report.Unsynced, statusItem{
			ID: e.ID, Title: e.Title, EntriesOffline: e.EntriesOffline,
		})
	}

	if cc.Flags.JSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")

		return enc.Encode(report)
	}

	printStatusText(cmd, report)

	return nil
}

func printStatusText(cmd *cobra.Command, report statusReport) {
	out := cmd.OutOrStdout()

	if report.User == nil {
		fmt.Fprintln(out, "Not logged in. Run 'fieldnote login' to get started.")
	} else {
		fmt.Fprintf(out, "Logged in as %s\n", report.User.Email)
	}

	if report.ConnectivityMode == modeManual {
		state := "offline"
		if report.ForcedConnected != nil && *report.ForcedConnected {
			state = "online"
		}

		fmt.Fprintf(out, "Connectivity: forced %s ('fieldnote online --auto' to clear)\n", state)
	} else {
		fmt.Fprintln(out, "Connectivity: auto")
	}

	if report.UnsyncedCount == 0 {
		fmt.Fprintln(out, "Everything is uploaded.")

		return
	}

	fmt.Fprintf(out, "%d item(s) awaiting upload:\n", report.UnsyncedCount)

	for _, item := range report.Unsynced {
		if item.WhollyOffline {
			fmt.Fprintf(out, "  %s  %q (new experience, %d entries)\n", item.ID, item.Title, item.EntriesOffline)

			continue
		}

		fmt.Fprintf(out, "  %s  %q (%d new entries)\n", item.ID, item.Title, item.EntriesOffline)
	}
}
