// Package tools provides the MCP tool handlers for trialscope.
//
// Each handler follows the same pattern:
// - A struct with dependencies injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() processes the request and returns a result
//
// User-facing failures (bad arguments, unknown sessions, zero results)
// become tool-result text; only internal faults return a Go error.
package tools

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/trialscope/trialscope/internal/store"
)

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// strPtrArg returns a pointer to the string argument, or nil when the
// argument is absent. Presence matters: criteria fields distinguish
// "no constraint" from an empty value.
func strPtrArg(req mcp.CallToolRequest, key string) *string {
	v, ok := req.GetArguments()[key].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}

// boolPtrArg returns a pointer to the boolean argument, or nil when absent.
func boolPtrArg(req mcp.CallToolRequest, key string) *bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return nil
	}
	return &v
}

// intPtrArg returns a pointer to the integer argument, or nil when absent.
func intPtrArg(req mcp.CallToolRequest, key string) *int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return nil
	}
	n := int(v)
	return &n
}

// listArg splits a comma-separated string argument into trimmed items.
func listArg(req mcp.CallToolRequest, key string) []string {
	v, ok := req.GetArguments()[key].(string)
	if !ok {
		return nil
	}
	var items []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			items = append(items, p)
		}
	}
	return items
}

// formatRecords renders a compact listing of studies for tool output.
func formatRecords(b *strings.Builder, records []store.Record, max int) {
	shown := records
	if len(shown) > max {
		shown = shown[:max]
	}
	for i, rec := range shown {
		status := rec.Status
		if status == "" {
			status = "UNKNOWN"
		}
		fmt.Fprintf(b, "[%d] %s — %s\n    status: %s", i+1, rec.NCTID, store.Truncate(rec.Title, 100), status)
		if rec.Phase != "" {
			fmt.Fprintf(b, " | phase: %s", rec.Phase)
		}
		if rec.LeadSponsor != "" {
			fmt.Fprintf(b, " | sponsor: %s", store.Truncate(rec.LeadSponsor, 60))
		}
		b.WriteString("\n")
	}
	if len(records) > max {
		fmt.Fprintf(b, "... and %d more\n", len(records)-max)
	}
}
