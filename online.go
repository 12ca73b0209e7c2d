package main

import (
	"github.com/spf13/cobra"

	"fieldnote/internal/config"
	"fieldnote/internal/userfile"
)

func newOnlineCmd() *cobra.Command {
	var auto bool

	cmd := &cobra.Command{
		Use:   "online",
		Short: "Force connectivity to online, or return to auto",
		Long: `Set a manual connectivity override forcing the engine online. With
--auto, clear any manual override instead and let the transport heartbeat
decide again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnline(cmd, auto)
		},
	}

	cmd.Flags().BoolVar(&auto, "auto", false, "clear the manual override")

	return cmd
}

func runOnline(cmd *cobra.Command, auto bool) error {
	cc := mustCLIContext(cmd.Context())
	path := config.DefaultUserPath()

	if auto {
		if err := userfile.ClearConnectivity(path); err != nil {
			return err
		}

		cc.Statusf("Connectivity back to auto\n")

		return nil
	}

	if err := userfile.SetConnectivity(path, true); err != nil {
		return err
	}

	cc.Statusf("Connectivity forced online\n")

	return nil
}
