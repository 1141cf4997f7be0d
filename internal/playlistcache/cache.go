package playlistcache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ddanialb/Film/internal/fileutil"
	"github.com/ddanialb/Film/internal/logging"
	"github.com/ddanialb/Film/internal/media"
)

// DefaultTTL is how long an entry stays valid.
const DefaultTTL = 7 * 24 * time.Hour

// Cache provides thread-safe access to the content ID cache. The backing
// file is a single JSON object keyed by content ID and is rewritten whole on
// every change.
type Cache struct {
	path    string
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time
	mu      sync.Mutex
	entries map[string]Entry
}

// New loads the cache at path. An empty path gives an in-memory cache.
// A ttl <= 0 uses DefaultTTL.
func New(path string, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		path:    path,
		ttl:     ttl,
		logger:  logging.NewComponentLogger(logger, "playlistcache"),
		now:     time.Now,
		entries: make(map[string]Entry),
	}
	if path == "" {
		return c
	}
	if err := c.load(); err != nil {
		logging.WarnWithContext(c.logger, "failed to load playlist cache", "playlistcache_load_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "cache will start empty"),
			logging.String(logging.FieldImpact, "titles will be resolved again through the catalog"))
	}
	return c
}

// Get returns the entry for contentID. An entry older than the TTL is evicted
// and reported as missing.
func (c *Cache) Get(contentID string) (Entry, bool) {
	id, err := media.NormalizeContentID(contentID)
	if err != nil {
		return Entry{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[id]
	if !ok {
		return Entry{}, false
	}
	if c.now().Sub(entry.CachedAt) > c.ttl {
		delete(c.entries, id)
		if err := c.save(); err != nil {
			c.logger.Warn("failed to persist eviction", logging.Error(err))
		}
		c.logger.Debug("evicted expired entry",
			logging.String(logging.FieldContentID, id),
			logging.String("cached_at", entry.CachedAt.Format(time.RFC3339)))
		return Entry{}, false
	}
	return entry, true
}

// Put validates and stores entry, stamping CachedAt. An invalid entry is
// logged as a data-quality warning and not written; Put then returns false.
func (c *Cache) Put(entry Entry) bool {
	err := entry.Validate()
	if err == nil {
		var id string
		if id, err = media.NormalizeContentID(entry.ContentID); err == nil {
			entry.ContentID = id
		}
	}
	if err != nil {
		logging.WarnWithContext(c.logger, "rejected invalid cache entry", "cache_entry_rejected",
			logging.String(logging.FieldContentID, entry.ContentID),
			logging.String("kind", string(entry.Kind)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "title will be resolved again next time"))
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry.CachedAt = c.now().UTC()
	c.entries[entry.ContentID] = entry
	if err := c.save(); err != nil {
		logging.WarnWithContext(c.logger, "failed to persist playlist cache", "playlistcache_save_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "entry kept in memory only"))
	}
	c.logger.Debug("cached playlist mapping",
		logging.String(logging.FieldContentID, entry.ContentID),
		logging.String("kind", string(entry.Kind)),
		logging.String("manifest_id", entry.FirstManifestID()))
	return true
}

// Invalidate removes one entry, or every entry when contentID is empty, and
// returns how many were removed.
func (c *Cache) Invalidate(contentID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed int
	if strings.TrimSpace(contentID) == "" {
		removed = len(c.entries)
		c.entries = make(map[string]Entry)
	} else {
		id, err := media.NormalizeContentID(contentID)
		if err != nil {
			return 0, err
		}
		if _, ok := c.entries[id]; ok {
			delete(c.entries, id)
			removed = 1
		}
	}
	if removed == 0 {
		return 0, nil
	}
	if err := c.save(); err != nil {
		return removed, fmt.Errorf("persist cache: %w", err)
	}
	c.logger.Debug("invalidated cache entries", logging.Int("removed", removed))
	return removed, nil
}

// List returns all entries, newest first.
func (c *Cache) List() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := make([]Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CachedAt.After(entries[j].CachedAt)
	})
	return entries
}

// Count returns the number of entries.
func (c *Cache) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Path returns the backing file.
func (c *Cache) Path() string { return c.path }

func (c *Cache) load() error {
	data, err := fileutil.ReadFileIfExists(c.path)
	if err != nil {
		return fmt.Errorf("read cache file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var stored map[string]Entry
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("parse cache file: %w", err)
	}
	for key, entry := range stored {
		if entry.ContentID == "" {
			entry.ContentID = key
		}
		if err := entry.Validate(); err != nil {
			c.logger.Warn("dropping invalid cache entry",
				logging.String(logging.FieldEventType, "cache_entry_dropped"),
				logging.String(logging.FieldContentID, key),
				logging.Error(err))
			continue
		}
		c.entries[entry.ContentID] = entry
	}
	c.logger.Debug("loaded playlist cache",
		logging.Int("entry_count", len(c.entries)),
		logging.String("path", c.path))
	return nil
}

// save must be called with mu held.
func (c *Cache) save() error {
	if c.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}
	return fileutil.WriteFileAtomic(c.path, data, 0o644)
}
