package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/trialscope/trialscope/internal/cache"
)

// CacheStatusTool handles the cache_status MCP tool.
type CacheStatusTool struct {
	cache *cache.Cache
}

// NewCacheStatusTool creates a CacheStatusTool.
func NewCacheStatusTool(c *cache.Cache) *CacheStatusTool {
	return &CacheStatusTool{cache: c}
}

// Definition returns the MCP tool definition for cache_status.
func (t *CacheStatusTool) Definition() mcp.Tool {
	return mcp.NewTool("cache_status",
		mcp.WithDescription("Report how many response-cache entries each tier currently holds."),
	)
}

// Handle processes the cache_status tool call.
func (t *CacheStatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats := t.cache.GetStats()
	return mcp.NewToolResultText(fmt.Sprintf(
		"Response cache: %d memory entries, %d disk entries.",
		stats.MemoryEntries, stats.DiskEntries,
	)), nil
}

// ClearCacheTool handles the clear_cache MCP tool.
type ClearCacheTool struct {
	cache *cache.Cache
}

// NewClearCacheTool creates a ClearCacheTool.
func NewClearCacheTool(c *cache.Cache) *ClearCacheTool {
	return &ClearCacheTool{cache: c}
}

// Definition returns the MCP tool definition for clear_cache.
func (t *ClearCacheTool) Definition() mcp.Tool {
	return mcp.NewTool("clear_cache",
		mcp.WithDescription(
			"Clear the response cache. scope 'expired' evicts only stale entries; "+
				"scope 'all' drops every entry in both tiers. The audit log is never touched.",
		),
		mcp.WithString("scope",
			mcp.Description("What to clear (default: expired)"),
			mcp.Enum("expired", "all"),
		),
	)
}

// Handle processes the clear_cache tool call.
func (t *ClearCacheTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scope := req.GetString("scope", "expired")

	switch scope {
	case "all":
		if err := t.cache.ClearAll(); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("clearing cache: %v", err)), nil
		}
		return mcp.NewToolResultText("Cleared every cache entry in both tiers."), nil
	case "expired":
		removed, err := t.cache.ClearExpired()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("clearing expired entries: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Evicted %d expired cache entries.", removed)), nil
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown scope %q (want 'expired' or 'all')", scope)), nil
	}
}
