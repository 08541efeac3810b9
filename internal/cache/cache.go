// Package cache persists fetched ticket payloads between runs so repeated
// report generation does not refetch unchanged tickets.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ganot/contribsum/internal/jira"
)

const (
	ticketsFileName  = "tickets.json"
	metadataFileName = "metadata.json"
)

// entryMeta records when a ticket was cached and the updated timestamp it
// carried at that time.
type entryMeta struct {
	CachedAt    string `json:"cached_at"`
	LastUpdated string `json:"last_updated"`
}

// Cache is an on-disk key-value store of ticket payloads. The layout is
// two sibling JSON files: tickets.json holds key -> payload, metadata.json
// holds key -> caching timestamps. Corrupt or missing files degrade to an
// empty cache; writes are best effort.
type Cache struct {
	dir          string
	ticketsFile  string
	metadataFile string
	tickets      map[string]*jira.Ticket
	metadata     map[string]entryMeta
	logger       *slog.Logger
}

// Stats describes cache contents.
type Stats struct {
	TicketCount int
	Dir         string
	SizeBytes   int64
}

// New opens a cache rooted at dir, creating it if needed. An empty dir
// selects the user cache directory.
func New(dir string, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("resolving user cache dir: %w", err)
		}
		dir = filepath.Join(base, "contribsum")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	c := &Cache{
		dir:          dir,
		ticketsFile:  filepath.Join(dir, ticketsFileName),
		metadataFile: filepath.Join(dir, metadataFileName),
		tickets:      make(map[string]*jira.Ticket),
		metadata:     make(map[string]entryMeta),
		logger:       logger,
	}
	c.load()
	return c, nil
}

// load reads both cache files. Unreadable or unparsable content yields an
// empty map rather than an error.
func (c *Cache) load() {
	if err := readJSONFile(c.ticketsFile, &c.tickets); err != nil {
		c.logger.Warn("ignoring unreadable ticket cache", "path", c.ticketsFile, "error", err)
		c.tickets = make(map[string]*jira.Ticket)
	}
	if err := readJSONFile(c.metadataFile, &c.metadata); err != nil {
		c.logger.Warn("ignoring unreadable cache metadata", "path", c.metadataFile, "error", err)
		c.metadata = make(map[string]entryMeta)
	}
}

func readJSONFile(path string, dest any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// GetTicket returns a cached ticket payload.
func (c *Cache) GetTicket(key string) (*jira.Ticket, bool) {
	t, ok := c.tickets[key]
	return t, ok
}

// PutTicket stores a ticket and flushes the cache to disk. Write failures
// are logged, never fatal.
func (c *Cache) PutTicket(key string, ticket *jira.Ticket) {
	c.tickets[key] = ticket
	if updated := ticket.UpdatedRaw(); updated != "" {
		c.metadata[key] = entryMeta{
			CachedAt:    time.Now().Format(time.RFC3339),
			LastUpdated: updated,
		}
	}
	c.save()
}

// IsStale reports whether the cached copy of key is older than the
// server-reported updated timestamp. Unknown keys and unparsable metadata
// count as stale.
func (c *Cache) IsStale(key string, currentUpdated time.Time) bool {
	if _, ok := c.tickets[key]; !ok {
		return true
	}
	meta, ok := c.metadata[key]
	if !ok || meta.LastUpdated == "" {
		return true
	}
	cachedUpdated, err := jira.ParseTime(meta.LastUpdated)
	if err != nil {
		return true
	}
	return currentUpdated.After(cachedUpdated)
}

// Clear drops all cached data and removes both files from disk.
func (c *Cache) Clear() error {
	c.tickets = make(map[string]*jira.Ticket)
	c.metadata = make(map[string]entryMeta)

	var errs []error
	for _, path := range []string{c.ticketsFile, c.metadataFile} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats returns cache statistics.
func (c *Cache) Stats() Stats {
	stats := Stats{TicketCount: len(c.tickets), Dir: c.dir}
	for _, path := range []string{c.ticketsFile, c.metadataFile} {
		if info, err := os.Stat(path); err == nil {
			stats.SizeBytes += info.Size()
		}
	}
	return stats
}

func (c *Cache) save() {
	if err := writeJSONFile(c.ticketsFile, c.tickets); err != nil {
		c.logger.Warn("failed to save ticket cache", "path", c.ticketsFile, "error", err)
	}
	if err := writeJSONFile(c.metadataFile, c.metadata); err != nil {
		c.logger.Warn("failed to save cache metadata", "path", c.metadataFile, "error", err)
	}
}

func writeJSONFile(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
