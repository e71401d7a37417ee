package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/trialscope/trialscope/internal/session"
	"github.com/trialscope/trialscope/internal/trials"
)

// SummarizeTool handles the summarize_results MCP tool.
type SummarizeTool struct {
	service *trials.Service
}

// NewSummarizeTool creates a SummarizeTool.
func NewSummarizeTool(service *trials.Service) *SummarizeTool {
	return &SummarizeTool{service: service}
}

// Definition returns the MCP tool definition for summarize_results.
func (t *SummarizeTool) Definition() mcp.Tool {
	return mcp.NewTool("summarize_results",
		mcp.WithDescription(
			"Summarize a session's current result set: totals, breakdowns by status, "+
				"phase, and sponsor class, plus the first few studies.",
		),
		mcp.WithString("session_token",
			mcp.Required(),
			mcp.Description("Token returned by search_studies"),
		),
		mcp.WithNumber("max_results",
			mcp.Description("How many studies to list (default: 10)"),
		),
	)
}

// Handle processes the summarize_results tool call.
func (t *SummarizeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token := req.GetString("session_token", "")
	if token == "" {
		return mcp.NewToolResultError("'session_token' is required"), nil
	}
	maxResults := intArg(req, "max_results", 10)

	sum, err := t.service.Summarize(token, maxResults)
	if errors.Is(err, session.ErrNotFound) {
		return mcp.NewToolResultText(fmt.Sprintf(
			"Session %q not found. Run search_studies to start a new one.", token,
		)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("summarize failed: %v", err)), nil
	}

	if sum.Total == 0 {
		return mcp.NewToolResultText("This session currently holds no studies."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Session holds %d studies.\n", sum.Total)

	writeBreakdown(&b, "By status", sum.ByStatus)
	writeBreakdown(&b, "By phase", sum.ByPhase)
	writeBreakdown(&b, "By sponsor class", sum.BySponsorClass)

	b.WriteString("\nStudies:\n")
	formatRecords(&b, sum.Top, maxResults)

	return mcp.NewToolResultText(b.String()), nil
}

func writeBreakdown(b *strings.Builder, label string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", label)
	for _, k := range trials.SortedCounts(counts) {
		fmt.Fprintf(b, "  %-25s %d\n", k, counts[k])
	}
}
