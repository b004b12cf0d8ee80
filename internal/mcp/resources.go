package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"nirsvault/internal/vault"
)

func (s *Server) registerResources() {
	// ── nirsvault://catalog ────────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		"nirsvault://catalog",
		"Vault Table Catalog",
		mcp.WithMIMEType("application/json"),
	), s.handleCatalogResource)

	// ── nirsvault://runs/{job} ─────────────────────────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"nirsvault://runs/{job}",
			"Recent Runs of a Job",
		),
		s.handleRunsResource,
	)
}

type tableSummary struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Columns []string `json:"columns"`
}

func (s *Server) handleCatalogResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	var summaries []tableSummary
	for _, d := range vault.Catalog() {
		t := tableSummary{Name: d.Name, Kind: string(d.Kind)}
		for _, f := range d.Schema.Fields {
			col := f.Name
			if f.Ref != "" {
				col += " → " + f.Ref
			}
			t.Columns = append(t.Columns, col)
		}
		summaries = append(summaries, t)
	}

	data, _ := json.MarshalIndent(summaries, "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "nirsvault://catalog",
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleRunsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	job := jobFromURI(uri)
	if job == "" {
		return nil, fmt.Errorf("could not extract job from URI: %s", uri)
	}

	logs, err := s.pipeline.ListRunLogs(job, 20)
	if err != nil {
		return nil, err
	}
	data, _ := json.MarshalIndent(logs, "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// jobFromURI extracts the job from "nirsvault://runs/{job}".
func jobFromURI(uri string) string {
	job, ok := strings.CutPrefix(uri, "nirsvault://runs/")
	if !ok || strings.Contains(job, "/") {
		return ""
	}
	return job
}
