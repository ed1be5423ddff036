// Package kvstore tests for the durable key-value store.
package kvstore

import (
	"testing"
	"time"
)

// openTestStore opens a store in a temp directory.
func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestSetGetRoundTrip verifies basic persistence.
func TestSetGetRoundTrip(t *testing.T) {
	s := openTestStore(t)

	in := map[string]string{"item_code": "ITM-001", "item_name": "Bottle"}
	if !s.Set("items_cache", in, nil) {
		t.Fatal("Set failed")
	}

	var out map[string]string
	if !s.Get("items_cache", &out) {
		t.Fatal("Get reported miss for stored key")
	}
	if out["item_code"] != "ITM-001" || out["item_name"] != "Bottle" {
		t.Errorf("round trip mismatch: %v", out)
	}
}

// TestGetMiss verifies misses leave the target untouched and report false.
func TestGetMiss(t *testing.T) {
	s := openTestStore(t)

	out := "unchanged"
	if s.Get("absent", &out) {
		t.Error("expected miss for absent key")
	}
	if out != "unchanged" {
		t.Errorf("miss modified the target: %q", out)
	}
}

// TestOverwrite verifies last-write-wins on the same key.
func TestOverwrite(t *testing.T) {
	s := openTestStore(t)

	s.Set("last_sync", "2026-01-01T00:00:00Z", nil)
	s.Set("last_sync", "2026-02-01T00:00:00Z", nil)

	var out string
	if !s.Get("last_sync", &out) {
		t.Fatal("Get reported miss")
	}
	if out != "2026-02-01T00:00:00Z" {
		t.Errorf("expected latest write, got %q", out)
	}
}

// TestLazyExpiry verifies expired entries read as misses.
func TestLazyExpiry(t *testing.T) {
	s := openTestStore(t)

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)

	s.Set("expired", "old", &past)
	s.Set("live", "fresh", &future)

	var out string
	if s.Get("expired", &out) {
		t.Error("expected expired entry to read as a miss")
	}
	if !s.Get("live", &out) || out != "fresh" {
		t.Errorf("expected live entry, got %q", out)
	}
}

// TestMalformedFallsBackToRawString verifies the raw-string degradation path
// for pre-existing writes that are not valid envelopes.
func TestMalformedFallsBackToRawString(t *testing.T) {
	s := openTestStore(t)

	// Simulate a legacy write that bypassed the envelope.
	if _, err := s.db.Exec(
		`INSERT INTO kv_store (key, value) VALUES (?, ?)`,
		"legacy", "not json at all"); err != nil {
		t.Fatalf("failed to seed legacy row: %v", err)
	}

	var str string
	if !s.Get("legacy", &str) {
		t.Fatal("expected raw fallback for *string target")
	}
	if str != "not json at all" {
		t.Errorf("raw fallback mismatch: %q", str)
	}

	// Non-string targets cannot absorb the raw text; treated as a miss.
	var m map[string]string
	if s.Get("legacy", &m) {
		t.Error("expected miss for structured target on malformed data")
	}

	if got, ok := s.GetString("legacy"); !ok || got != "not json at all" {
		t.Errorf("GetString fallback mismatch: %q ok=%v", got, ok)
	}
}

// TestRemove verifies deletion, including of missing keys.
func TestRemove(t *testing.T) {
	s := openTestStore(t)

	s.Set("offline_queue", []string{"a"}, nil)
	if !s.Remove("offline_queue") {
		t.Error("Remove failed for existing key")
	}

	var out []string
	if s.Get("offline_queue", &out) {
		t.Error("expected miss after Remove")
	}

	if !s.Remove("never_existed") {
		t.Error("removing a missing key should succeed")
	}
}

// TestGetStringUnwrapsEnvelope verifies stored strings read back unwrapped.
func TestGetStringUnwrapsEnvelope(t *testing.T) {
	s := openTestStore(t)

	s.Set("last_sync", "2026-03-01T10:00:00Z", nil)

	got, ok := s.GetString("last_sync")
	if !ok || got != "2026-03-01T10:00:00Z" {
		t.Errorf("GetString = %q ok=%v", got, ok)
	}
}

// TestPersistenceAcrossReopen verifies durability across store handles.
func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s1.Set("sessions_cache", map[string]string{"s1": "open"}, nil)
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	var out map[string]string
	if !s2.Get("sessions_cache", &out) || out["s1"] != "open" {
		t.Errorf("expected persisted value after reopen, got %v", out)
	}
}
