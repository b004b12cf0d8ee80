package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerWarehouseTools() {
	s.mcp.AddTool(mcp.NewTool("introspect_warehouse",
		mcp.WithDescription("Get the vault tables and columns currently stored in the warehouse"),
	), s.handleIntrospectWarehouse)

	s.mcp.AddTool(mcp.NewTool("execute_query",
		mcp.WithDescription("Run a read-only query against the warehouse. Sequence columns hold md5 hashes. Write statements are refused."),
		mcp.WithString("query", mcp.Description("SQL query (or a JSON filter document for mongodb)"), mcp.Required()),
		mcp.WithNumber("fetchSize", mcp.Description("Number of rows to fetch (default 100)")),
	), s.handleExecuteQuery)
}

func (s *Server) handleIntrospectWarehouse(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	schema, err := s.dashboard.Introspect(ctx)
	if err != nil {
		return nil, fmt.Errorf("introspect: %w", err)
	}
	return jsonResult(schema)
}

func (s *Server) handleExecuteQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	query := req.GetString("query", "")
	fetchSize := int(getFloat(args, "fetchSize", 100))
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	if isWriteQuery(query) {
		return textResult(fmt.Sprintf("Write query refused: %s", truncate(query, 100))), nil
	}

	result, err := s.dashboard.Query(ctx, query, nil, fetchSize)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	return jsonResult(result)
}

// isWriteQuery detects statements that would change the vault.
func isWriteQuery(query string) bool {
	upper := strings.ToUpper(strings.TrimSpace(query))
	for _, prefix := range []string{"UPDATE", "DELETE", "DROP", "INSERT", "ALTER", "TRUNCATE", "CREATE", "REPLACE"} {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}
	return false
}
