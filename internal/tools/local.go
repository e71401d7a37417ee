package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/trialscope/trialscope/internal/store"
	"github.com/trialscope/trialscope/internal/trials"
)

// LocalSearchTool handles the search_local MCP tool.
type LocalSearchTool struct {
	service *trials.Service
}

// NewLocalSearchTool creates a LocalSearchTool.
func NewLocalSearchTool(service *trials.Service) *LocalSearchTool {
	return &LocalSearchTool{service: service}
}

// Definition returns the MCP tool definition for search_local.
func (t *LocalSearchTool) Definition() mcp.Tool {
	return mcp.NewTool("search_local",
		mcp.WithDescription(
			"Full-text search over studies already stored locally, ranked by relevance. "+
				"Covers titles, summaries, descriptions, conditions, and keywords. "+
				"Never contacts the registry.",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query — natural language or keywords"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 20)"),
		),
	)
}

// Handle processes the search_local tool call.
func (t *LocalSearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	limit := intArg(req, "limit", 20)

	records, err := t.service.SearchLocal(query, limit)
	if errors.Is(err, store.ErrEmptyQuery) {
		return mcp.NewToolResultError("'query' must not be empty"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("local search failed: %v", err)), nil
	}

	if len(records) == 0 {
		return mcp.NewToolResultText("No stored studies match your query."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d stored studies:\n\n", len(records))
	formatRecords(&b, records, limit)

	return mcp.NewToolResultText(b.String()), nil
}
