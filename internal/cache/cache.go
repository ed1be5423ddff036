// Package cache provides the local entity cache for offline reads: catalog
// items, counting sessions, and count lines, backed by the durable key-value
// store. Faults at this layer are logged and degrade to safe defaults; the
// cache never panics and never propagates storage errors to callers.
package cache

import (
	"encoding/json"
	"time"

	"github.com/thantzin/stockcount/backend/internal/kvstore"
	"github.com/thantzin/stockcount/backend/internal/logging"
	"github.com/thantzin/stockcount/backend/internal/models"
)

// Persisted state layout. The cache and queue own these keys exclusively;
// nothing else writes to the store directly.
const (
	KeyItems      = "items_cache"
	KeySessions   = "sessions_cache"
	KeyCountLines = "count_lines_cache"
	KeyLastSync   = "last_sync"
)

// EntityCache stores normalized entity snapshots for offline reads.
type EntityCache struct {
	store *kvstore.Store
}

// New creates an EntityCache on top of the given store.
func New(store *kvstore.Store) *EntityCache {
	return &EntityCache{store: store}
}

// CacheItem validates and persists one catalog item, merging it into the
// item_code-keyed map with last-write-wins semantics. Invalid items are
// logged and skipped; the return is nil and no write happens.
func (c *EntityCache) CacheItem(item *models.CachedItem) *models.CachedItem {
	if item == nil {
		return nil
	}
	if err := item.Validate(); err != nil {
		logging.Warn("cache: rejected invalid item",
			map[string]interface{}{"item_code": item.ItemCode, "reason": err.Message})
		return nil
	}

	items := c.Items()
	item.Stamp()
	items[item.ItemCode] = *item

	if !c.store.Set(KeyItems, items, nil) {
		return nil
	}
	return item
}

// Items returns the full item map, empty on miss or fault.
func (c *EntityCache) Items() map[string]models.CachedItem {
	items := make(map[string]models.CachedItem)
	c.store.Get(KeyItems, &items)
	return items
}

// GetItem returns one item by its item_code.
func (c *EntityCache) GetItem(code string) (*models.CachedItem, bool) {
	items := c.Items()
	item, ok := items[code]
	if !ok {
		return nil, false
	}
	return &item, true
}

// CacheSession normalizes a heterogeneous session payload and persists it.
// The normalized session is returned even when it fails validation, so the
// caller can inspect what was derived, but nothing invalid is persisted.
func (c *EntityCache) CacheSession(raw map[string]interface{}) *models.CachedSession {
	session := models.NormalizeSession(raw)
	if err := session.Validate(); err != nil {
		logging.Warn("cache: rejected invalid session",
			map[string]interface{}{"session_id": session.ID, "reason": err.Message})
		return session
	}

	sessions := c.Sessions()
	session.Stamp()
	sessions[session.ID] = *session
	c.store.Set(KeySessions, sessions, nil)

	return session
}

// Sessions returns the session map. A persisted "undefined" key left behind
// by a corrupt historical write is purged and the cleaned map written back.
func (c *EntityCache) Sessions() map[string]models.CachedSession {
	sessions := make(map[string]models.CachedSession)
	c.store.Get(KeySessions, &sessions)

	if _, corrupt := sessions[models.UndefinedSessionID]; corrupt {
		delete(sessions, models.UndefinedSessionID)
		logging.Warn("cache: purged corrupt session key",
			map[string]interface{}{"key": models.UndefinedSessionID})
		c.store.Set(KeySessions, sessions, nil)
	}

	return sessions
}

// GetSession returns one session by id.
func (c *EntityCache) GetSession(id string) (*models.CachedSession, bool) {
	sessions := c.Sessions()
	s, ok := sessions[id]
	if !ok {
		return nil, false
	}
	return &s, true
}

// CacheCountLine validates and persists a count line into its session's
// array, replacing any existing line with the same id (a recount). Invalid
// lines are logged and skipped; the return is nil and no write happens.
func (c *EntityCache) CacheCountLine(line *models.CachedCountLine) *models.CachedCountLine {
	if line == nil {
		return nil
	}
	if err := line.Validate(); err != nil {
		logging.Warn("cache: rejected invalid count line",
			map[string]interface{}{"_id": line.ID, "session_id": line.SessionID, "reason": err.Message})
		return nil
	}

	all := c.countLineIndex()
	line.Stamp()

	lines := all[line.SessionID]
	replaced := false
	for i := range lines {
		if lines[i].ID == line.ID {
			lines[i] = *line
			replaced = true
			break
		}
	}
	if !replaced {
		lines = append(lines, *line)
	}
	all[line.SessionID] = lines

	if !c.store.Set(KeyCountLines, all, nil) {
		return nil
	}
	return line
}

// CountLines returns the count lines recorded for one session, in the order
// they were first cached.
func (c *EntityCache) CountLines(sessionID string) []models.CachedCountLine {
	all := c.countLineIndex()
	return all[sessionID]
}

// countLineIndex returns the session-to-lines index, empty on miss or fault.
func (c *EntityCache) countLineIndex() map[string][]models.CachedCountLine {
	all := make(map[string][]models.CachedCountLine)
	c.store.Get(KeyCountLines, &all)
	return all
}

// SetLastSync stamps the last successful sync time.
func (c *EntityCache) SetLastSync(t time.Time) {
	c.store.Set(KeyLastSync, t.UTC().Format(time.RFC3339), nil)
}

// LastSync returns the last successful sync time, if any.
func (c *EntityCache) LastSync() (time.Time, bool) {
	var stamp string
	if !c.store.Get(KeyLastSync, &stamp) {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Stats aggregates per-entity counts and an approximate serialized size.
// Diagnostics only; nothing enforces a capacity from these numbers.
type Stats struct {
	ItemsCount      int     `json:"items_count"`
	SessionsCount   int     `json:"sessions_count"`
	CountLinesCount int     `json:"count_lines_count"`
	LastSync        string  `json:"last_sync,omitempty"`
	ApproxSizeKB    float64 `json:"approx_size_kb"`
}

// GetStats computes cache statistics across all three entity kinds.
func (c *EntityCache) GetStats() Stats {
	items := c.Items()
	sessions := c.Sessions()
	lines := c.countLineIndex()

	stats := Stats{
		ItemsCount:    len(items),
		SessionsCount: len(sessions),
	}
	for _, sessionLines := range lines {
		stats.CountLinesCount += len(sessionLines)
	}

	if t, ok := c.LastSync(); ok {
		stats.LastSync = t.Format(time.RFC3339)
	}

	size := 0
	for _, v := range []interface{}{items, sessions, lines} {
		if data, err := json.Marshal(v); err == nil {
			size += len(data)
		}
	}
	stats.ApproxSizeKB = float64(size) / 1024

	return stats
}

// ClearAll removes every cache key. Best effort: a failure on one key does
// not roll back the others.
func (c *EntityCache) ClearAll() bool {
	ok := true
	for _, key := range []string{KeyItems, KeySessions, KeyCountLines, KeyLastSync} {
		if !c.store.Remove(key) {
			ok = false
		}
	}
	if ok {
		logging.Info("cache: cleared all entity caches")
	}
	return ok
}
