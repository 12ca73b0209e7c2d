package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"fieldnote/internal/noteid"
	"fieldnote/internal/resolver"
)

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <experience-id>",
		Short: "Delete an experience",
		Long: `Delete an experience and all of its entries from the local cache.
Deleting an offline experience discards it permanently — it was never
uploaded, so nothing remains anywhere.`,
		Args: cobra.ExactArgs(1),
		RunE: runRm,
	}
}

func runRm(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	a, err := openApp(cc)
	if err != nil {
		return err
	}
	defer a.Close()

	id := noteid.New(args[0])

	err = a.resolver.DeleteExperience(cmd.Context(), id)
	if errors.Is(err, resolver.ErrNotFound) {
		return fmt.Errorf("no experience %q", args[0])
	}

	if err != nil {
		return err
	}

	cc.Statusf("Deleted %s\n", id)

	return nil
}
