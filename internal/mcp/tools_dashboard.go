package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"nirsvault/internal/dashboard"
	"nirsvault/internal/etl"
)

func (s *Server) registerDashboardTools() {
	s.mcp.AddTool(mcp.NewTool("list_metrics",
		mcp.WithDescription("List the dashboard metrics with their parameters and columns"),
	), s.handleListMetrics)

	s.mcp.AddTool(mcp.NewTool("run_metric",
		mcp.WithDescription("Evaluate a dashboard metric over the loaded vault and return its table"),
		mcp.WithString("metric", mcp.Description("Metric name (use list_metrics)"), mcp.Required()),
		mcp.WithString("match", mcp.Description("observations: comma-separated substrings the name must all contain, e.g. ViMo,Oxy")),
		mcp.WithString("channels", mcp.Description("observations: 1-based inclusive column range, e.g. 1:2")),
		mcp.WithString("name", mcp.Description("observation-metadata: exact observation name")),
		mcp.WithString("prefix", mcp.Description("group-members: subject name prefix, e.g. Subj or Autism")),
		mcp.WithString("transformsJSON", mcp.Description(`Optional JSON array of transforms applied to the result rows. Each transform has {type, config}:
- filter: {field, op (eq|neq|gt|lt|contains|prefix), value}
- rename: {mapping: {old: new}}
- select: {fields: ["col1","col2"]}
- dedupe: {key}
- sort: {field, direction (asc|desc)}
- limit: {count}`)),
		mcp.WithBoolean("cache", mcp.Description("Answer from the latest snapshot when one exists (default true)")),
	), s.handleRunMetric)
}

func (s *Server) handleListMetrics(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.dashboard.Metrics())
}

func (s *Server) handleRunMetric(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	metric := req.GetString("metric", "")
	if metric == "" {
		return nil, fmt.Errorf("metric is required")
	}
	p := dashboard.Params{
		Match:    splitList(req.GetString("match", "")),
		Channels: req.GetString("channels", ""),
		Name:     req.GetString("name", ""),
		Prefix:   req.GetString("prefix", ""),
	}
	if raw := rawJSON(args, "transformsJSON"); raw != "" {
		var ts []etl.TransformConfig
		if err := parseJSON(raw, &ts); err != nil {
			return nil, fmt.Errorf("parse transforms: %w", err)
		}
		p.Transforms = ts
	}

	res, err := s.dashboard.Run(ctx, metric, p, req.GetBool("cache", true))
	if err != nil {
		return nil, fmt.Errorf("run metric: %w", err)
	}
	return jsonResult(res)
}
