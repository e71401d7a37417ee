// TrialScope: ClinicalTrials.gov search MCP server
//
// An MCP server that searches the ClinicalTrials.gov registry, stores
// every study it sees in a local SQLite database with full-text search,
// and lets clients iteratively refine, summarize, and export result sets.
//
// Usage:
//
//	trialscope serve       # Start MCP server (stdio transport)
//	trialscope backfill    # Re-project stored studies after an upgrade
//	trialscope cache ...   # Inspect or clear the response cache
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	tsserver "github.com/trialscope/trialscope/internal/server"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := runServe(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "backfill":
		if err := runBackfill(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "cache":
		if err := runCache(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("trialscope v%s\n", tsserver.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runServe() error {
	s, cleanup, err := tsserver.New()
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	return server.ServeStdio(s)
}

// runBackfill re-runs the projection over every stored study whose
// projection is older than the current version, then reports what
// changed. Run it once after upgrading to a release that changes the
// projection.
func runBackfill() error {
	deps, err := tsserver.Wire()
	if err != nil {
		return err
	}
	defer deps.Close()

	result, err := deps.Store.Backfill()
	if err != nil {
		return fmt.Errorf("backfill: %w", err)
	}

	fmt.Printf("Scanned %d studies: %d re-projected, %d skipped.\n",
		result.Scanned, result.Updated, result.Skipped)
	for _, id := range result.SkippedIDs {
		fmt.Printf("  skipped %s: stored payload no longer parses\n", id)
	}
	return nil
}

func runCache(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: trialscope cache <status|clear|expire>")
	}

	deps, err := tsserver.Wire()
	if err != nil {
		return err
	}
	defer deps.Close()

	switch args[0] {
	case "status":
		stats := deps.Cache.GetStats()
		fmt.Printf("memory entries: %d\ndisk entries:   %d\n",
			stats.MemoryEntries, stats.DiskEntries)
		return nil
	case "clear":
		if err := deps.Cache.ClearAll(); err != nil {
			return fmt.Errorf("clearing cache: %w", err)
		}
		fmt.Println("Cleared both cache tiers.")
		return nil
	case "expire":
		removed, err := deps.Cache.ClearExpired()
		if err != nil {
			return fmt.Errorf("clearing expired entries: %w", err)
		}
		fmt.Printf("Evicted %d expired entries.\n", removed)
		return nil
	default:
		return fmt.Errorf("unknown cache command %q (want status, clear, or expire)", args[0])
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `TrialScope v%s — ClinicalTrials.gov search MCP server

Usage:
  trialscope serve          Start the MCP server (stdio transport)
  trialscope backfill       Re-project stored studies after an upgrade
  trialscope cache status   Show cache entry counts per tier
  trialscope cache clear    Drop every cache entry
  trialscope cache expire   Evict only expired cache entries
  trialscope version        Print the version

Configuration:
  Reads trialscope.yaml from the working directory; every key is
  overridable via TRIALSCOPE_* environment variables. Add to your AI
  tool's MCP config:

  {
    "mcpServers": {
      "trialscope": {
        "command": "trialscope",
        "args": ["serve"]
      }
    }
  }
`, tsserver.Version)
}
