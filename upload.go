package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"fieldnote/internal/remote"
	"fieldnote/internal/userfile"
)

func newUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload",
		Short: "Upload offline-created experiences and entries",
		Long: `Run the reconciliation routine once: every offline-created experience
and entry is submitted to the remote service, and the local cache is
rewritten with the permanent identifiers the server assigns. Entities the
server rejects keep their offline identifiers and their errors; fix them
and run upload again.`,
		Args: cobra.NoArgs,
		RunE: runUpload,
	}
}

func runUpload(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	a, err := openApp(cc)
	if err != nil {
		return err
	}
	defer a.Close()

	uf, err := userfile.Load(a.userPath)
	if err != nil {
		return err
	}

	if uf == nil || uf.User == nil {
		return fmt.Errorf("not logged in — run 'fieldnote login' first")
	}

	if uf.Connectivity != nil && !uf.Connectivity.Connected {
		return fmt.Errorf("connectivity is forced offline — run 'fieldnote online' first")
	}

	result, err := a.uploader.Upload(cmd.Context())
	if errors.Is(err, remote.ErrUnreachable) {
		return fmt.Errorf("remote service unreachable — try again when connected: %w", err)
	}

	if err != nil {
		return err
	}

	if result.SavedExperiences == 0 && result.SavedEntries == 0 && result.Clean() {
		cc.Statusf("Nothing to upload.\n")

		return nil
	}

	cc.Statusf("Uploaded %d experience(s) and %d entry(ies)\n", result.SavedExperiences, result.SavedEntries)

	if !result.Clean() {
		return fmt.Errorf("%d experience(s) and %d entry(ies) were rejected — see 'fieldnote ls' and 'fieldnote show'",
			result.FailedExperiences, result.FailedEntries)
	}

	return nil
}
