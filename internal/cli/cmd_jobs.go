package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"nirsvault/internal/etl/sources"
)

func newJobsCmd(g *globals) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List configured jobs and their last run",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			jobs, err := a.pipeline.Jobs()
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), jobs)
			}
			rows := make([][]string, 0, len(jobs))
			for _, j := range jobs {
				trigger := j.TriggerType
				if j.TriggerConfig != "" {
					trigger += " " + j.TriggerConfig
				}
				rows = append(rows, []string{
					j.Name, j.SourceType, j.SourceCfg.String(sources.KeyFolder), trigger,
					strconv.FormatBool(j.Enabled), statusText(j.LastStatus), formatTime(j.LastRunAt),
				})
			}
			renderTable(cmd.OutOrStdout(), []string{"job", "source", "folder", "trigger", "enabled", "last status", "last run"}, rows)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print jobs as JSON")
	return cmd
}

func newRunsCmd(g *globals) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "runs <job>",
		Short: "Show the run history of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			logs, err := a.pipeline.ListRunLogs(args[0], limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), logs)
			}
			rows := make([][]string, 0, len(logs))
			for _, l := range logs {
				rows = append(rows, []string{
					l.ID, formatTime(l.StartedAt), l.Trigger, statusText(l.Status),
					strconv.Itoa(l.GroupsLoaded) + "/" + strconv.Itoa(l.GroupsRead),
					strconv.Itoa(l.RowsWritten), strconv.Itoa(len(l.Failures)), l.Error,
				})
			}
			renderTable(cmd.OutOrStdout(), []string{"run", "started", "trigger", "status", "groups", "rows", "failures", "error"}, rows)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print runs with their failures as JSON")
	return cmd
}
