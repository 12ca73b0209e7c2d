package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"fieldnote/internal/cache"
	"fieldnote/internal/resolver"
)

func newNewCmd() *cobra.Command {
	var (
		description string
		entries     []string
	)

	cmd := &cobra.Command{
		Use:   "new <title>",
		Short: "Create a new experience",
		Long: `Create a new experience in the local cache. The experience is created
offline regardless of connectivity; it receives a permanent identifier the
next time 'fieldnote upload' runs with a connection.

Each --entry flag seeds one initial entry; its argument is a comma-separated
list of field=value pairs.

Examples:
  fieldnote new "Morning runs"
  fieldnote new "Sleep log" --description "hours and quality"
  fieldnote new "Sleep log" --entry hours=7.5,quality=good`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNew(cmd, args[0], description, entries)
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "experience description")
	cmd.Flags().StringArrayVar(&entries, "entry", nil, "seed entry as field=value[,field=value...]")

	return cmd
}

func runNew(cmd *cobra.Command, title, description string, rawEntries []string) error {
	cc := mustCLIContext(cmd.Context())

	a, err := openApp(cc)
	if err != nil {
		return err
	}
	defer a.Close()

	input := resolver.CreateExperienceInput{
		Title:       title,
		Description: description,
	}

	for _, raw := range rawEntries {
		data, err := parseDataObjects(raw)
		if err != nil {
			return fmt.Errorf("invalid --entry %q: %w", raw, err)
		}

		input.Entries = append(input.Entries, data)
	}

	exp, err := a.resolver.CreateOfflineExperience(cmd.Context(), input)
	if err != nil {
		return err
	}

	cc.Statusf("Created experience %s (%d entries)\n", exp.ID, len(exp.Entries))
	fmt.Fprintln(cmd.OutOrStdout(), exp.ID)

	return nil
}

// parseDataObjects parses "field=value,field=value" into entry data.
func parseDataObjects(raw string) ([]cache.DataObject, error) {
	var data []cache.DataObject

	for _, pair := range strings.Split(raw, ",") {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("expected field=value, got %q", pair)
		}

		data = append(data, cache.DataObject{FieldName: name, Value: value})
	}

	return data, nil
}
