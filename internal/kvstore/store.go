// Package kvstore provides the durable key-value store backing the offline
// cache and mutation queue. Values are stored as JSON envelopes with a write
// timestamp and optional expiry, evaluated lazily on read.
package kvstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/thantzin/stockcount/backend/internal/logging"
)

// Store wraps a SQLite-backed key-value table.
//
// Steady-state operations never return errors: storage faults are logged and
// converted into a boolean failure (Set/Remove) or a cache miss (Get). Only
// Open can fail, since without a database there is nothing to degrade to.
type Store struct {
	db *sql.DB
}

// envelope is the persisted wrapper around every stored value.
type envelope struct {
	Value     json.RawMessage `json:"value"`
	Timestamp string          `json:"timestamp"`
	Expires   *string         `json:"expires,omitempty"`
}

// Open opens the key-value store under dataDir.
// The database is opened with:
// - WAL mode for concurrent reads/writes
// - Foreign key constraints enabled
func Open(dataDir string) (*Store, error) {
	// Ensure data directory exists
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "stockcount.db")

	// Open database with modernc.org/sqlite (pure Go, no CGO)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't support multiple writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	schema := `CREATE TABLE IF NOT EXISTS kv_store (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create kv_store table: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Set stores value under key, optionally with an expiry time.
// Returns false if serialization or the write fails.
func (s *Store) Set(key string, value interface{}, expires *time.Time) bool {
	raw, err := json.Marshal(value)
	if err != nil {
		logging.Error("kvstore: failed to serialize value", err,
			map[string]interface{}{"key": key})
		return false
	}

	env := envelope{
		Value:     raw,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if expires != nil {
		exp := expires.UTC().Format(time.RFC3339)
		env.Expires = &exp
	}

	data, err := json.Marshal(env)
	if err != nil {
		logging.Error("kvstore: failed to serialize envelope", err,
			map[string]interface{}{"key": key})
		return false
	}

	_, err = s.db.Exec(
		`INSERT INTO kv_store (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, string(data))
	if err != nil {
		logging.Error("kvstore: write failed", err,
			map[string]interface{}{"key": key})
		return false
	}

	return true
}

// Get reads the value stored under key into out and reports whether a live
// value was found. Expired entries are treated as misses. If the stored text
// is not a valid envelope (a raw legacy write), it is assigned verbatim when
// out is a *string, otherwise treated as a miss.
func (s *Store) Get(key string, out interface{}) bool {
	raw, ok := s.read(key)
	if !ok {
		return false
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil || env.Value == nil {
		// Malformed stored JSON degrades to the raw string rather than an error.
		if sp, isString := out.(*string); isString {
			*sp = raw
			return true
		}
		logging.Warn("kvstore: malformed envelope, treating as miss",
			map[string]interface{}{"key": key})
		return false
	}

	if s.expired(key, env.Expires) {
		return false
	}

	if err := json.Unmarshal(env.Value, out); err != nil {
		logging.Error("kvstore: failed to deserialize value", err,
			map[string]interface{}{"key": key})
		return false
	}

	return true
}

// GetString reads the raw inner value stored under key as a string.
// Envelope-wrapped JSON strings are unwrapped; anything else is returned as
// stored. Reports false on miss or expiry.
func (s *Store) GetString(key string) (string, bool) {
	raw, ok := s.read(key)
	if !ok {
		return "", false
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil || env.Value == nil {
		return raw, true
	}

	if s.expired(key, env.Expires) {
		return "", false
	}

	var str string
	if err := json.Unmarshal(env.Value, &str); err != nil {
		return string(env.Value), true
	}
	return str, true
}

// Remove deletes key. Returns false only on a storage fault; removing a
// missing key succeeds.
func (s *Store) Remove(key string) bool {
	if _, err := s.db.Exec(`DELETE FROM kv_store WHERE key = ?`, key); err != nil {
		logging.Error("kvstore: delete failed", err,
			map[string]interface{}{"key": key})
		return false
	}
	return true
}

// read fetches the raw stored text for key.
func (s *Store) read(key string) (string, bool) {
	var raw string
	err := s.db.QueryRow(`SELECT value FROM kv_store WHERE key = ?`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return "", false
	}
	if err != nil {
		logging.Error("kvstore: read failed", err,
			map[string]interface{}{"key": key})
		return "", false
	}
	return raw, true
}

// expired reports whether the envelope expiry is present and in the past.
func (s *Store) expired(key string, expires *string) bool {
	if expires == nil {
		return false
	}
	exp, err := time.Parse(time.RFC3339, *expires)
	if err != nil {
		logging.Warn("kvstore: unparseable expiry, treating as live",
			map[string]interface{}{"key": key, "expires": *expires})
		return false
	}
	return exp.Before(time.Now())
}
