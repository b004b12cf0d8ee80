package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("investigate_run",
		mcp.WithPromptDescription("Find out why file groups of a job were dropped in its last run"),
		mcp.WithArgument("job",
			mcp.ArgumentDescription("Job name"),
			mcp.RequiredArgument(),
		),
	), s.handleInvestigateRunPrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("compare_conditions",
		mcp.WithPromptDescription("Compare observations of two visuomotor conditions"),
		mcp.WithArgument("first",
			mcp.ArgumentDescription("First condition acronym (ViMo, Viso, Moto, Rest)"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("second",
			mcp.ArgumentDescription("Second condition acronym"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("signal",
			mcp.ArgumentDescription("Oxy, Deoxy or MES (default Oxy)"),
		),
	), s.handleCompareConditionsPrompt)
}

func (s *Server) handleInvestigateRunPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	job := req.Params.Arguments["job"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Investigate the last run of %s", job),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Investigate the last run of the ingest job "%s". Follow these steps:

1. Use list_runs with job "%s" and limit 1 to get the run and its failures
2. Group the failures by kind (INCOMPLETE_GROUP, MALFORMED_TABLE, NATURAL_KEY_COLLISION, ...)
3. Use preview_job to see which file groups the job finds now
4. For each kind, explain what is wrong with the files and what would fix it

Do not run the job again unless asked.`, job, job),
				},
			},
		},
	}, nil
}

func (s *Server) handleCompareConditionsPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	first := req.Params.Arguments["first"]
	second := req.Params.Arguments["second"]
	signal := req.Params.Arguments["signal"]
	if signal == "" {
		signal = "Oxy"
	}
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Compare %s and %s (%s)", first, second, signal),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Compare the %[3]s observations of the %[1]s and %[2]s conditions. Follow these steps:

1. Use run_metric "observations" with match "%[1]s,%[3]s" and then with match "%[2]s,%[3]s"
2. Use run_metric "experiment-factors" to confirm which factors each condition varies
3. Use run_metric "group-members" with prefix "Subj" to see who is in each group
4. Summarize differences in the sample ranges per channel; narrow with channels (e.g. 1:4) when the tables are large`, first, second, signal),
				},
			},
		},
	}, nil
}
