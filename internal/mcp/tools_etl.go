package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"nirsvault/internal/service"
)

func (s *Server) registerETLTools() {
	s.mcp.AddTool(mcp.NewTool("list_sources",
		mcp.WithDescription("List the ingest source types (vm, preautism) with their configuration fields"),
	), s.handleListSources)

	s.mcp.AddTool(mcp.NewTool("list_jobs",
		mcp.WithDescription("List the configured ingest jobs with trigger and last-run status"),
	), s.handleListJobs)

	s.mcp.AddTool(mcp.NewTool("preview_job",
		mcp.WithDescription("Show the batches and file groups a job would read, without loading anything"),
		mcp.WithString("job", mcp.Description("Job name"), mcp.Required()),
	), s.handlePreviewJob)

	s.mcp.AddTool(mcp.NewTool("run_job",
		mcp.WithDescription("🛑 Run an ingest job now. Appends rows to the warehouse. Disabled unless the server was started with runs allowed."),
		mcp.WithString("job", mcp.Description("Job name"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleRunJob)

	s.mcp.AddTool(mcp.NewTool("list_runs",
		mcp.WithDescription("Recent runs with counts and the file groups that failed, newest first"),
		mcp.WithString("job", mcp.Description("Job name (optional, all jobs when empty)")),
		mcp.WithNumber("limit", mcp.Description("Number of runs (default 20)")),
	), s.handleListRuns)
}

func (s *Server) handleListSources(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.pipeline.ListSources())
}

func (s *Server) handleListJobs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobs, err := s.pipeline.Jobs()
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jsonResult(jobs)
}

func (s *Server) handlePreviewJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	job := req.GetString("job", "")
	if job == "" {
		return nil, fmt.Errorf("job is required")
	}
	batches, err := s.pipeline.Preview(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("preview job: %w", err)
	}
	return jsonResult(batches)
}

func (s *Server) handleRunJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	job := req.GetString("job", "")
	if job == "" {
		return nil, fmt.Errorf("job is required")
	}
	if !s.allowRuns {
		return textResult("Runs are disabled on this server; start it with --allow-runs"), nil
	}
	s.log.Info("run requested", zap.String("job", job))

	result, err := s.pipeline.RunJob(ctx, job, service.TriggerManual)
	if err != nil && result == nil {
		return nil, fmt.Errorf("run job: %w", err)
	}
	return jsonResult(result)
}

func (s *Server) handleListRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	logs, err := s.pipeline.ListRunLogs(req.GetString("job", ""), int(getFloat(args, "limit", 20)))
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return jsonResult(logs)
}
