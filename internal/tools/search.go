package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/trialscope/trialscope/internal/ctgov"
	"github.com/trialscope/trialscope/internal/trials"
)

// SearchTool handles the search_studies MCP tool.
type SearchTool struct {
	service *trials.Service
}

// NewSearchTool creates a SearchTool.
func NewSearchTool(service *trials.Service) *SearchTool {
	return &SearchTool{service: service}
}

// Definition returns the MCP tool definition for search_studies.
func (t *SearchTool) Definition() mcp.Tool {
	return mcp.NewTool("search_studies",
		mcp.WithDescription(
			"Search the clinical study registry. Results are stored locally and a session "+
				"token is returned — use refine_results on the token to narrow the set "+
				"without re-querying the registry. At least one search dimension is required.",
		),
		mcp.WithString("condition",
			mcp.Description("Condition or disease, e.g. 'type 2 diabetes'"),
		),
		mcp.WithString("terms",
			mcp.Description("Free-text search terms, e.g. an intervention or drug name"),
		),
		mcp.WithString("location",
			mcp.Description("Location term, e.g. a city or country"),
		),
		mcp.WithString("status",
			mcp.Description("Recruitment status filter, e.g. RECRUITING or COMPLETED"),
		),
	)
}

// Handle processes the search_studies tool call.
func (t *SearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := ctgov.SearchParams{
		Condition: req.GetString("condition", ""),
		Terms:     req.GetString("terms", ""),
		Location:  req.GetString("location", ""),
		Status:    req.GetString("status", ""),
	}
	if len(params.Map()) == 0 {
		return mcp.NewToolResultError(
			"at least one of 'condition', 'terms', 'location', or 'status' is required",
		), nil
	}

	result, err := t.service.Search(ctx, params)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	if len(result.Records) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf(
			"No studies matched your search.\nSession token: %s (empty)", result.SessionToken,
		)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d studies.\nSession token: %s\n\n", len(result.Records), result.SessionToken)
	formatRecords(&b, result.Records, 10)
	b.WriteString("\nUse refine_results with this session token to narrow the set.\n")

	return mcp.NewToolResultText(b.String()), nil
}
