package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"nirsvault/internal/dashboard"
	"nirsvault/internal/dbclient"
	"nirsvault/internal/etl"
)

// Pipeline is the part of service.PipelineService the tools use.
type Pipeline interface {
	Jobs() ([]etl.SyncJob, error)
	ListSources() []etl.SourceSpec
	ListRunLogs(name string, limit int) ([]etl.SyncRunLog, error)
	Preview(ctx context.Context, name string) ([]etl.Batch, error)
	RunJob(ctx context.Context, name, trigger string) (*etl.SyncResult, error)
}

// Dashboard is the part of service.DashboardService the tools use.
type Dashboard interface {
	Metrics() []dashboard.Metric
	Run(ctx context.Context, metric string, p dashboard.Params, useCache bool) (*dashboard.Result, error)
	Query(ctx context.Context, query string, args []any, fetchSize int) (*dbclient.QueryPage, error)
	Introspect(ctx context.Context) (*dbclient.SchemaInfo, error)
}

// Server is the MCP server for nirsvault.
// It exposes tools, resources, and prompts so AI agents can inspect runs
// and query the loaded vault.
type Server struct {
	mcp       *server.MCPServer
	pipeline  Pipeline
	dashboard Dashboard
	log       *zap.Logger

	// allowRuns enables run_job; loads write to the warehouse.
	allowRuns bool
}

// Deps holds the dependencies passed from the CLI to the MCP server.
type Deps struct {
	Pipeline  Pipeline
	Dashboard Dashboard
	Logger    *zap.Logger
	AllowRuns bool
	Version   string
}

// New creates and configures a new MCP server with all tools and resources.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}
	s := &Server{
		pipeline:  deps.Pipeline,
		dashboard: deps.Dashboard,
		log:       deps.Logger.Named("mcp"),
		allowRuns: deps.AllowRuns,
	}

	s.mcp = server.NewMCPServer(
		"nirsvault-mcp",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerETLTools()
	s.registerDashboardTools()
	s.registerWarehouseTools()
	s.registerResources()
	s.registerPrompts()
	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	s.log.Info("starting stdio server")
	return server.ServeStdio(s.mcp)
}

// Serve runs the server over the given streams until ctx ends.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

// ── Helpers ────────────────────────────────────────────────

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

func boolPtr(v bool) *bool { return &v }
