// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it creates concrete implementations
// and injects them into the tools that depend on them. No business
// logic lives here — only wiring.
package server

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"
	"github.com/trialscope/trialscope/internal/cache"
	"github.com/trialscope/trialscope/internal/config"
	"github.com/trialscope/trialscope/internal/ctgov"
	"github.com/trialscope/trialscope/internal/session"
	"github.com/trialscope/trialscope/internal/store"
	"github.com/trialscope/trialscope/internal/tools"
	"github.com/trialscope/trialscope/internal/trials"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Deps holds the long-lived components the server and the CLI
// subcommands share. Close must be called on shutdown.
type Deps struct {
	Config  *config.Config
	Logger  *logrus.Logger
	Store   *store.Store
	Cache   *cache.Cache
	Service *trials.Service
}

// Close releases the store's database connection.
func (d *Deps) Close() error {
	return d.Store.Close()
}

// Wire builds every component from configuration. The logger writes to
// stderr — stdout belongs to the MCP stdio transport.
func Wire() (*Deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	c, err := cache.New(cfg.DataDir, cfg.MemoryTTL, cfg.DiskTTL, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	sessions, err := session.NewManager(st, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("creating session manager: %w", err)
	}

	client := ctgov.NewClient(cfg.APIBaseURL, logger)
	svc := trials.NewService(client, st, c, sessions, logger, cfg.MaxSearchResults)

	return &Deps{
		Config:  cfg,
		Logger:  logger,
		Store:   st,
		Cache:   c,
		Service: svc,
	}, nil
}

// New creates and configures the MCP server with all tools registered.
//
// The returned cleanup function closes the database connection and must
// be called on shutdown (typically via defer). It is always non-nil.
func New() (*server.MCPServer, func(), error) {
	deps, err := Wire()
	if err != nil {
		return nil, func() {}, err
	}

	s := server.NewMCPServer(
		"trialscope",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	searchTool := tools.NewSearchTool(deps.Service)
	s.AddTool(searchTool.Definition(), searchTool.Handle)

	refineTool := tools.NewRefineTool(deps.Service)
	s.AddTool(refineTool.Definition(), refineTool.Handle)

	detailsTool := tools.NewDetailsTool(deps.Service)
	s.AddTool(detailsTool.Definition(), detailsTool.Handle)

	summarizeTool := tools.NewSummarizeTool(deps.Service)
	s.AddTool(summarizeTool.Definition(), summarizeTool.Handle)

	exportTool := tools.NewExportTool(deps.Service)
	s.AddTool(exportTool.Definition(), exportTool.Handle)

	localTool := tools.NewLocalSearchTool(deps.Service)
	s.AddTool(localTool.Definition(), localTool.Handle)

	cacheStatusTool := tools.NewCacheStatusTool(deps.Cache)
	s.AddTool(cacheStatusTool.Definition(), cacheStatusTool.Handle)

	clearCacheTool := tools.NewClearCacheTool(deps.Cache)
	s.AddTool(clearCacheTool.Definition(), clearCacheTool.Handle)

	cleanup := func() {
		if err := deps.Close(); err != nil {
			deps.Logger.WithError(err).Warn("closing store")
		}
	}

	return s, cleanup, nil
}

func serverInstructions() string {
	return `TrialScope searches the ClinicalTrials.gov registry and keeps every
study it sees in a local store with full-text search.

Typical flow:
 1. search_studies — query the registry by condition, terms, location,
    or status. Returns a session token plus the first results.
 2. refine_results — narrow the session's result set with structured
    criteria (phase, status, enrollment, dates, ages, locations, ...).
    Refinements replace the session's set; repeat to narrow further.
 3. summarize_results / export_results — aggregate or write out the
    session's current set.
 4. get_study_details — full record for one NCT id, fetched from the
    registry if not stored yet.
 5. search_local — relevance-ranked full-text search over everything
    already stored, without touching the network.

Registry responses are cached (memory + disk), so repeating a search is
cheap. cache_status and clear_cache manage that cache.`
}
