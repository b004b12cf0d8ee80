package cli

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"nirsvault/internal/etl"
	"nirsvault/internal/service"
)

func newIngestCmd(g *globals) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ingest [job...]",
		Short: "Run ingest jobs once",
		Long: `Runs the named jobs, or every enabled job when none is named, and prints
what was loaded. File groups that fail are listed and skipped; the rest of
the run still loads.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			names := args
			if len(names) == 0 {
				jobs, err := a.pipeline.Jobs()
				if err != nil {
					return err
				}
				for _, j := range jobs {
					if j.Enabled {
						names = append(names, j.Name)
					}
				}
			}
			if len(names) == 0 {
				return errors.New("no jobs configured; declare jobs or set sources.vm_folder / sources.preautism_folder")
			}

			var results []*etl.SyncResult
			var errs []error
			for _, name := range names {
				res, err := a.pipeline.RunJob(cmd.Context(), name, service.TriggerManual)
				if res != nil {
					results = append(results, res)
				}
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", name, err))
				}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if err := writeJSON(out, results); err != nil {
					return err
				}
				return errors.Join(errs...)
			}
			printResults(cmd, results)
			return errors.Join(errs...)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}

func printResults(cmd *cobra.Command, results []*etl.SyncResult) {
	out := cmd.OutOrStdout()
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{
			r.JobID,
			statusText(r.Status),
			fmt.Sprintf("%d/%d", r.GroupsLoaded, r.GroupsRead),
			strconv.Itoa(r.RowsWritten),
			r.Duration.Round(time.Millisecond).String(),
		})
	}
	renderTable(out, []string{"job", "status", "groups", "rows", "took"}, rows)

	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(out, "%s: %s\n", r.JobID, errorStyle.Render(r.Error))
		}
		if len(r.Failures) == 0 {
			continue
		}
		fmt.Fprintf(out, "\n%s dropped %d file group(s):\n", r.JobID, len(r.Failures))
		failures := append([]etl.GroupFailure(nil), r.Failures...)
		sort.Slice(failures, func(i, j int) bool { return failures[i].Group < failures[j].Group })
		frows := make([][]string, 0, len(failures))
		for _, f := range failures {
			frows = append(frows, []string{f.Group, f.Stage, string(f.Kind), f.Error})
		}
		renderTable(out, []string{"group", "stage", "kind", "error"}, frows)
	}
}
