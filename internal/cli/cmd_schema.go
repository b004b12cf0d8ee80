package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

func newSchemaCmd(g *globals) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Create missing vault tables and list what the warehouse holds",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.warehouse.TestConnection(cmd.Context()); err != nil {
				return err
			}
			info, err := a.warehouse.Introspect(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), info)
			}
			rows := make([][]string, 0, len(info.Tables))
			for _, t := range info.Tables {
				cols := make([]string, 0, len(t.Columns))
				for _, c := range t.Columns {
					cols = append(cols, c.Name)
				}
				rows = append(rows, []string{t.Name, strings.Join(cols, ", ")})
			}
			renderTable(cmd.OutOrStdout(), []string{"table", "columns"}, rows)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print column types as JSON")
	return cmd
}
