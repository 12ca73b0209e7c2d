package main

import (
	"github.com/spf13/cobra"

	"fieldnote/internal/config"
	"fieldnote/internal/userfile"
)

func newOfflineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "offline",
		Short: "Force connectivity to offline",
		Long: `Set a manual connectivity override: the engine behaves as if the
network were down, regardless of what the transport heartbeat observes.
Automatic signals are ignored until the override is cleared with
'fieldnote online --auto'.`,
		Args: cobra.NoArgs,
		RunE: runOffline,
	}
}

func runOffline(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if err := userfile.SetConnectivity(config.DefaultUserPath(), false); err != nil {
		return err
	}

	cc.Statusf("Connectivity forced offline\n")

	return nil
}
