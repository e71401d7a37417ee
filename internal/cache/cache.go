// Package cache memoizes registry responses in two tiers: a short-TTL
// in-process map and a long-TTL directory of JSON files, plus an
// append-only per-day audit log of raw responses.
//
// Entries are derived, reconstructible data — never the source of
// truth — so concurrent writers racing on the same key is acceptable
// (last writer wins) and corrupt disk entries are simply discarded.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	cacheSubdir = "cache"
	auditSubdir = "audit"
)

// Cache is the two-tier response cache.
type Cache struct {
	dir     string
	memTTL  time.Duration
	diskTTL time.Duration
	logger  *logrus.Logger

	mu  sync.Mutex
	mem map[string]memEntry

	// now is swapped in tests to simulate clock advance.
	now func() time.Time
}

type memEntry struct {
	payload   []byte
	writtenAt time.Time
}

// diskEnvelope is the on-disk entry format: the payload plus its write
// timestamp, so expiry survives process restarts.
type diskEnvelope struct {
	WrittenAt time.Time         `json:"written_at"`
	Params    map[string]string `json:"params"`
	Payload   json.RawMessage   `json:"payload"`
}

// auditLine is one append-only audit record.
type auditLine struct {
	Timestamp time.Time         `json:"timestamp"`
	Params    map[string]string `json:"params"`
	Payload   json.RawMessage   `json:"payload"`
}

// New creates a cache rooted at dataDir. The cache and audit
// subdirectories are created on first use.
func New(dataDir string, memTTL, diskTTL time.Duration, logger *logrus.Logger) (*Cache, error) {
	if err := os.MkdirAll(filepath.Join(dataDir, cacheSubdir), 0o700); err != nil {
		return nil, fmt.Errorf("cache: create cache dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dataDir, auditSubdir), 0o700); err != nil {
		return nil, fmt.Errorf("cache: create audit dir: %w", err)
	}
	return &Cache{
		dir:     dataDir,
		memTTL:  memTTL,
		diskTTL: diskTTL,
		logger:  logger,
		mem:     make(map[string]memEntry),
		now:     time.Now,
	}, nil
}

// Key computes the canonical cache key for a request: the category plus
// a hash of the parameters serialized with sorted, escaped keys, so two
// semantically identical parameter sets always hash identically and two
// different ones never do. Escaping matters: a raw "k=v&" join would
// let a value containing "&" or "=" mimic another parameter set.
func Key(category string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
		b.WriteByte('&')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return category + "-" + hex.EncodeToString(sum[:])[:16]
}

// Get returns the cached payload for (category, params), or absent.
// Memory tier is checked first; a disk hit is promoted into memory.
// Expired entries are evicted lazily and treated as absent.
func (c *Cache) Get(category string, params map[string]string) ([]byte, bool) {
	key := Key(category, params)
	now := c.now()

	c.mu.Lock()
	if e, ok := c.mem[key]; ok {
		if now.Sub(e.writtenAt) <= c.memTTL {
			c.mu.Unlock()
			return e.payload, true
		}
		delete(c.mem, key)
	}
	c.mu.Unlock()

	path := c.entryPath(key)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	var env diskEnvelope
	if err := json.Unmarshal(data, &env); err != nil || len(env.Payload) == 0 {
		// Corrupt entry: remove and treat as absent.
		c.logger.WithField("key", key).Warn("Removing corrupt cache entry")
		_ = os.Remove(path)
		return nil, false
	}
	if now.Sub(env.WrittenAt) > c.diskTTL {
		_ = os.Remove(path)
		return nil, false
	}

	// Promote to the memory tier, stamped with the read time so the
	// promotion gets a full memory TTL.
	c.mu.Lock()
	c.mem[key] = memEntry{payload: env.Payload, writtenAt: now}
	c.mu.Unlock()

	return env.Payload, true
}

// Set writes the payload through both tiers unconditionally.
func (c *Cache) Set(category string, params map[string]string, payload []byte) error {
	key := Key(category, params)
	now := c.now()

	c.mu.Lock()
	c.mem[key] = memEntry{payload: payload, writtenAt: now}
	c.mu.Unlock()

	env := diskEnvelope{WrittenAt: now, Params: params, Payload: payload}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("cache: marshal entry: %w", err)
	}
	if err := os.WriteFile(c.entryPath(key), data, 0o600); err != nil {
		return fmt.Errorf("cache: write entry: %w", err)
	}
	return nil
}

// AppendAudit appends one line to today's audit log: timestamp, request
// params, and the full payload. The log is append-only and never read
// by the serving path; it exists for offline reconstruction and
// debugging.
func (c *Cache) AppendAudit(params map[string]string, payload []byte) error {
	now := c.now()
	line := auditLine{Timestamp: now, Params: params, Payload: payload}
	data, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("cache: marshal audit line: %w", err)
	}

	path := filepath.Join(c.dir, auditSubdir,
		fmt.Sprintf("api_audit_%s.jsonl", now.Format("2006-01-02")))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("cache: open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("cache: append audit line: %w", err)
	}
	return nil
}

// ClearAll drops the memory tier and deletes every persisted cache
// file. The audit log is untouched.
func (c *Cache) ClearAll() error {
	c.mu.Lock()
	c.mem = make(map[string]memEntry)
	c.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(c.dir, cacheSubdir))
	if err != nil {
		return fmt.Errorf("cache: read cache dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, cacheSubdir, e.Name())); err != nil {
			return fmt.Errorf("cache: remove %s: %w", e.Name(), err)
		}
	}
	return nil
}

// ClearExpired proactively evicts stale entries from both tiers without
// waiting for a read. Corrupt disk entries are removed too.
func (c *Cache) ClearExpired() (removed int, err error) {
	now := c.now()

	c.mu.Lock()
	for k, e := range c.mem {
		if now.Sub(e.writtenAt) > c.memTTL {
			delete(c.mem, k)
			removed++
		}
	}
	c.mu.Unlock()

	dir := filepath.Join(c.dir, cacheSubdir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return removed, fmt.Errorf("cache: read cache dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			continue
		}
		var env diskEnvelope
		if json.Unmarshal(data, &env) != nil || now.Sub(env.WrittenAt) > c.diskTTL {
			if os.Remove(path) == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// Stats reports entry counts per tier.
type Stats struct {
	MemoryEntries int
	DiskEntries   int
}

// GetStats counts live entries in each tier.
func (c *Cache) GetStats() Stats {
	c.mu.Lock()
	memCount := len(c.mem)
	c.mu.Unlock()

	diskCount := 0
	if entries, err := os.ReadDir(filepath.Join(c.dir, cacheSubdir)); err == nil {
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
				diskCount++
			}
		}
	}
	return Stats{MemoryEntries: memCount, DiskEntries: diskCount}
}

func (c *Cache) entryPath(key string) string {
	return filepath.Join(c.dir, cacheSubdir, key+".json")
}
