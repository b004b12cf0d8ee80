package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"nirsvault/internal/dashboard"
)

func newQueryCmd(g *globals) *cobra.Command {
	var (
		p          dashboard.Params
		paramsFile string
		noCache    bool
		xlsxPath   string
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "query <metric>",
		Short: "Evaluate a dashboard metric",
		Long: `Evaluates one of the dashboard metrics over the loaded vault:

  observations          --match ViMo,Oxy --channels 1:4
  observation-metadata  --name VM0001_ViMo_HBA_Probe1_Oxy
  experiment-factors
  group-members         --prefix Subj

Parameters can also come from a YAML file (--params), which is the only way
to pass transforms. Flags override the file.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: metricNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := loadParams(paramsFile)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("match") {
				params.Match = p.Match
			}
			if flags.Changed("channels") {
				params.Channels = p.Channels
			}
			if flags.Changed("name") {
				params.Name = p.Name
			}
			if flags.Changed("prefix") {
				params.Prefix = p.Prefix
			}

			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if xlsxPath != "" {
				f, err := os.Create(xlsxPath)
				if err != nil {
					return err
				}
				if err := a.dashboard.Export(cmd.Context(), f, args[0], params, !noCache); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "wrote", xlsxPath)
				return nil
			}

			res, err := a.dashboard.Run(cmd.Context(), args[0], params, !noCache)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			rows := make([][]string, 0, len(res.Rows))
			for _, r := range res.Rows {
				cells := make([]string, len(r))
				for i, v := range r {
					cells[i] = formatCell(v)
				}
				rows = append(rows, cells)
			}
			renderTable(cmd.OutOrStdout(), res.Columns, rows)
			fmt.Fprintf(cmd.OutOrStdout(), "%d row(s)\n", len(res.Rows))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&p.Match, "match", nil, "substrings an observation name must contain")
	f.StringVar(&p.Channels, "channels", "", "1-based inclusive channel range a:b")
	f.StringVar(&p.Name, "name", "", "observation name")
	f.StringVar(&p.Prefix, "prefix", "", "subject name prefix")
	f.StringVar(&paramsFile, "params", "", "YAML file with metric parameters and transforms")
	f.BoolVar(&noCache, "no-cache", false, "compute even when a snapshot exists")
	f.StringVar(&xlsxPath, "xlsx", "", "write the result to an Excel workbook")
	f.BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func metricNames() []string {
	var names []string
	for _, m := range dashboard.Metrics() {
		names = append(names, m.Name)
	}
	return names
}

func loadParams(path string) (dashboard.Params, error) {
	var p dashboard.Params
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("%w: %s: %v", dashboard.ErrInvalidParams, path, err)
	}
	return p, nil
}
