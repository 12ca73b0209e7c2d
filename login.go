package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"fieldnote/internal/config"
	"fieldnote/internal/remote"
	"fieldnote/internal/userfile"
)

func newLoginCmd() *cobra.Command {
	var tokenFlag string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with an API token",
		Long: `Store an API token and verify it against the remote service. The token
is read from --token, the FIELDNOTE_TOKEN environment variable, or stdin,
in that order. On success the user record is cached locally so every other
command works offline.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogin(cmd, tokenFlag)
		},
	}

	cmd.Flags().StringVar(&tokenFlag, "token", "", "API token (prefer FIELDNOTE_TOKEN or stdin)")

	return cmd
}

// staticToken satisfies remote.TokenSource for the pre-save verification
// call.
type staticToken string

func (s staticToken) Token() (string, error) { return string(s), nil }

func runLogin(cmd *cobra.Command, tokenFlag string) error {
	cc := mustCLIContext(cmd.Context())

	token, err := resolveToken(cmd, tokenFlag)
	if err != nil {
		return err
	}

	// Verify before persisting anything.
	client := remote.NewClient(
		cc.Config.Remote.BaseURL,
		&http.Client{Timeout: cc.Config.RequestTimeout()},
		staticToken(token),
		cc.Logger,
	)

	me, err := client.Me(cmd.Context())
	if err != nil {
		return fmt.Errorf("verifying token: %w", err)
	}

	user := &userfile.User{ID: me.ID, Email: me.Email, Name: me.Name}

	if err := userfile.SetUser(config.DefaultUserPath(), user, token); err != nil {
		return err
	}

	cc.Statusf("Logged in as %s\n", me.Email)

	return nil
}

// resolveToken picks the API token from flag, environment, or stdin.
func resolveToken(cmd *cobra.Command, tokenFlag string) (string, error) {
	if tokenFlag != "" {
		return tokenFlag, nil
	}

	if env := os.Getenv("FIELDNOTE_TOKEN"); env != "" {
		return env, nil
	}

	fmt.Fprint(os.Stderr, "Token: ")

	var token string
	if _, err := fmt.Fscanln(cmd.InOrStdin(), &token); err != nil {
		return "", fmt.Errorf("reading token: %w", err)
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("empty token")
	}

	return token, nil
}
