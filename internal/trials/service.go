// Package trials implements the operations the front ends expose:
// search, refine, details, summarize, and export. It owns the control
// flow between the response cache, the registry client, the record
// store, and the session manager — and none of their internals.
package trials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/trialscope/trialscope/internal/cache"
	"github.com/trialscope/trialscope/internal/ctgov"
	"github.com/trialscope/trialscope/internal/export"
	"github.com/trialscope/trialscope/internal/filter"
	"github.com/trialscope/trialscope/internal/session"
	"github.com/trialscope/trialscope/internal/store"
)

// ErrStudyNotFound is returned by GetDetails when neither the local
// store nor the registry knows the id.
var ErrStudyNotFound = errors.New("trials: study not found")

// errEnough stops pagination once the result cap is reached.
var errEnough = errors.New("trials: result cap reached")

const searchCategory = "search"

// SourceClient is the outbound registry boundary. It is assumed to have
// already retried transient failures: any error it returns is terminal.
type SourceClient interface {
	SearchAll(ctx context.Context, params ctgov.SearchParams, fn func(batch []ctgov.Study) error) error
	GetStudy(ctx context.Context, nctID string) (*ctgov.Study, error)
}

// Service wires the core components together.
type Service struct {
	client     SourceClient
	store      *store.Store
	cache      *cache.Cache
	sessions   *session.Manager
	logger     *logrus.Logger
	maxResults int
}

// NewService creates the service. maxResults caps how many studies one
// search ingests.
func NewService(client SourceClient, st *store.Store, c *cache.Cache, sm *session.Manager, logger *logrus.Logger, maxResults int) *Service {
	if maxResults <= 0 {
		maxResults = 1000
	}
	return &Service{
		client:     client,
		store:      st,
		cache:      c,
		sessions:   sm,
		logger:     logger,
		maxResults: maxResults,
	}
}

// SearchResult is the outcome of one search: a new session plus the
// records it holds.
type SearchResult struct {
	SessionToken string
	Records      []store.Record
	FromCache    bool
}

// Search probes the response cache, falls back to the registry on a
// miss (writing through both cache tiers and the audit log), upserts
// every returned study, and creates a session over the resulting ids.
func (s *Service) Search(ctx context.Context, params ctgov.SearchParams) (*SearchResult, error) {
	paramsMap := params.Map()

	payloads, fromCache, err := s.fetchPayloads(ctx, params, paramsMap)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(payloads))
	records := make([]store.Record, 0, len(payloads))
	for _, raw := range payloads {
		if err := s.store.Upsert(raw); err != nil {
			return nil, fmt.Errorf("storing search results: %w", err)
		}
	}
	// Re-read after upsert so callers see the stored projection.
	for _, raw := range payloads {
		var probe ctgov.Study
		if err := json.Unmarshal(raw, &probe); err != nil {
			return nil, fmt.Errorf("decoding search results: %w", err)
		}
		rec, err := s.store.Get(probe.NCTID())
		if err != nil {
			return nil, fmt.Errorf("reading back study %s: %w", probe.NCTID(), err)
		}
		ids = append(ids, rec.NCTID)
		records = append(records, *rec)
	}

	token, err := s.sessions.Create(paramsMap, ids)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"token":      token,
		"results":    len(ids),
		"from_cache": fromCache,
	}).Info("Search completed")

	return &SearchResult{SessionToken: token, Records: records, FromCache: fromCache}, nil
}

// fetchPayloads returns the raw study payloads for params, from cache
// when possible.
func (s *Service) fetchPayloads(ctx context.Context, params ctgov.SearchParams, paramsMap map[string]string) ([]json.RawMessage, bool, error) {
	if cached, ok := s.cache.Get(searchCategory, paramsMap); ok {
		var payloads []json.RawMessage
		if err := json.Unmarshal(cached, &payloads); err == nil {
			return payloads, true, nil
		}
		// A cached blob we can't decode is discarded, not fatal.
		s.logger.Warn("Discarding undecodable cached search response")
	}

	var payloads []json.RawMessage
	err := s.client.SearchAll(ctx, params, func(batch []ctgov.Study) error {
		for _, study := range batch {
			payloads = append(payloads, study.Raw)
			if len(payloads) >= s.maxResults {
				return errEnough
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errEnough) {
		return nil, false, fmt.Errorf("registry search: %w", err)
	}

	blob, err := json.Marshal(payloads)
	if err != nil {
		return nil, false, fmt.Errorf("encoding search results for cache: %w", err)
	}
	if err := s.cache.Set(searchCategory, paramsMap, blob); err != nil {
		s.logger.WithError(err).Warn("Cache write failed")
	}
	if err := s.cache.AppendAudit(paramsMap, blob); err != nil {
		s.logger.WithError(err).Warn("Audit append failed")
	}

	return payloads, false, nil
}

// RefineResult reports one refinement transition.
type RefineResult struct {
	PreviousCount int
	NewCount      int
	Records       []store.Record
}

// Refine resolves the session's current records, keeps the subset
// matching criteria, and replaces the session's id set with it. Zero
// survivors is a valid outcome, distinct from session.ErrNotFound.
// No registry call occurs.
func (s *Service) Refine(token string, criteria filter.Criteria) (*RefineResult, error) {
	records, err := s.sessions.Resolve(token)
	if err != nil {
		return nil, err
	}

	survivors := filter.Filter(records, criteria)
	ids := make([]string, 0, len(survivors))
	for _, rec := range survivors {
		ids = append(ids, rec.NCTID)
	}

	if err := s.sessions.Refine(token, ids); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"token":    token,
		"previous": len(records),
		"current":  len(survivors),
	}).Info("Session refined")

	return &RefineResult{
		PreviousCount: len(records),
		NewCount:      len(survivors),
		Records:       survivors,
	}, nil
}

// GetDetails returns one study from the local store, falling back to
// the registry on a local miss and upserting what it fetched. Returns
// ErrStudyNotFound when neither side knows the id.
func (s *Service) GetDetails(ctx context.Context, nctID string) (*store.Record, error) {
	rec, err := s.store.Get(nctID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	study, err := s.client.GetStudy(ctx, nctID)
	if errors.Is(err, ctgov.ErrStudyNotFound) {
		return nil, ErrStudyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching study %s: %w", nctID, err)
	}

	if err := s.store.Upsert(study.Raw); err != nil {
		return nil, fmt.Errorf("storing study %s: %w", nctID, err)
	}
	return s.store.Get(nctID)
}

// Summary aggregates a session's current records.
type Summary struct {
	Total          int
	ByStatus       map[string]int
	ByPhase        map[string]int
	BySponsorClass map[string]int
	Top            []store.Record
}

// Summarize aggregates counts over the session's current records and
// returns up to maxResults of them for display.
func (s *Service) Summarize(token string, maxResults int) (*Summary, error) {
	records, err := s.sessions.Resolve(token)
	if err != nil {
		return nil, err
	}
	if maxResults <= 0 {
		maxResults = 10
	}

	sum := &Summary{
		Total:          len(records),
		ByStatus:       map[string]int{},
		ByPhase:        map[string]int{},
		BySponsorClass: map[string]int{},
	}
	for _, rec := range records {
		sum.ByStatus[orUnknown(rec.Status)]++
		sum.ByPhase[orUnknown(rec.Phase)]++
		sum.BySponsorClass[orUnknown(rec.SponsorClass)]++
	}

	top := records
	if len(top) > maxResults {
		top = top[:maxResults]
	}
	sum.Top = top
	return sum, nil
}

// Export resolves the session's records and writes them to destination
// in the given format (csv or jsonl).
func (s *Service) Export(token, format, destination string) (int, error) {
	records, err := s.sessions.Resolve(token)
	if err != nil {
		return 0, err
	}

	f, err := os.Create(destination)
	if err != nil {
		return 0, fmt.Errorf("creating export file: %w", err)
	}
	defer f.Close()

	if err := export.Write(f, format, records); err != nil {
		return 0, err
	}

	s.logger.WithFields(logrus.Fields{
		"token":       token,
		"format":      format,
		"destination": destination,
		"records":     len(records),
	}).Info("Session exported")

	return len(records), nil
}

// SearchLocal runs a full-text query over the local store only.
func (s *Service) SearchLocal(query string, limit int) ([]store.Record, error) {
	ids, err := s.store.FullTextSearch(query, limit)
	if err != nil {
		return nil, err
	}

	records := make([]store.Record, 0, len(ids))
	for _, id := range ids {
		rec, err := s.store.Get(id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, nil
}

// SortedCounts returns a count map's keys sorted by descending count,
// for stable display in the front ends.
func SortedCounts(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}

func orUnknown(v string) string {
	if v == "" {
		return "UNKNOWN"
	}
	return v
}
