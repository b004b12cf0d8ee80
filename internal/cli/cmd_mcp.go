package cli

import (
	"github.com/spf13/cobra"

	mcpserver "nirsvault/internal/mcp"
)

func newMCPCmd(g *globals) *cobra.Command {
	var allowRuns bool
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve MCP tools over stdin/stdout",
		Long: `Starts a Model Context Protocol server on stdin/stdout so an agent can list
jobs and runs, evaluate metrics and run read-only queries against the vault.
Running jobs is refused unless --allow-runs is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			s := mcpserver.New(mcpserver.Deps{
				Pipeline:  a.pipeline,
				Dashboard: a.dashboard,
				Logger:    a.log,
				AllowRuns: allowRuns,
				Version:   Version,
			})
			return s.Serve(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&allowRuns, "allow-runs", false, "let agents start ingest jobs")
	return cmd
}
