package main

import (
	"github.com/spf13/cobra"

	"fieldnote/internal/config"
	"fieldnote/internal/userfile"
)

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored API token",
		Long: `Remove the stored user record and API token. Cached experiences stay on
disk; a later login picks them up again.`,
		Args: cobra.NoArgs,
		RunE: runLogout,
	}
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if err := userfile.ClearUser(config.DefaultUserPath()); err != nil {
		return err
	}

	cc.Statusf("Logged out\n")

	return nil
}
