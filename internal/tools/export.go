package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/trialscope/trialscope/internal/session"
	"github.com/trialscope/trialscope/internal/trials"
)

// ExportTool handles the export_results MCP tool.
type ExportTool struct {
	service *trials.Service
}

// NewExportTool creates an ExportTool.
func NewExportTool(service *trials.Service) *ExportTool {
	return &ExportTool{service: service}
}

// Definition returns the MCP tool definition for export_results.
func (t *ExportTool) Definition() mcp.Tool {
	return mcp.NewTool("export_results",
		mcp.WithDescription(
			"Export a session's current result set to a file. "+
				"csv covers the flattened study fields; jsonl writes each study's "+
				"raw payload one object per line.",
		),
		mcp.WithString("session_token",
			mcp.Required(),
			mcp.Description("Token returned by search_studies"),
		),
		mcp.WithString("format",
			mcp.Required(),
			mcp.Description("Output format"),
			mcp.Enum("csv", "jsonl"),
		),
		mcp.WithString("destination",
			mcp.Required(),
			mcp.Description("Path of the file to write"),
		),
	)
}

// Handle processes the export_results tool call.
func (t *ExportTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token := req.GetString("session_token", "")
	format := req.GetString("format", "")
	destination := req.GetString("destination", "")
	if token == "" || format == "" || destination == "" {
		return mcp.NewToolResultError("'session_token', 'format', and 'destination' are all required"), nil
	}

	n, err := t.service.Export(token, format, destination)
	if errors.Is(err, session.ErrNotFound) {
		return mcp.NewToolResultText(fmt.Sprintf(
			"Session %q not found. Run search_studies to start a new one.", token,
		)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("export failed: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Exported %d studies to %s (%s).", n, destination, format,
	)), nil
}
