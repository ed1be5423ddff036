package conflict

import (
	"testing"

	"github.com/thantzin/stockcount/backend/internal/errors"
	"github.com/thantzin/stockcount/backend/internal/kvstore"
	"github.com/thantzin/stockcount/backend/internal/models"
	"github.com/thantzin/stockcount/backend/internal/queue"
)

// newTestResolver builds a resolver over a temp-dir queue.
func newTestResolver(t *testing.T) (*Resolver, *queue.OfflineQueue) {
	t.Helper()

	store, err := kvstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	q := queue.New(store)
	return NewResolver(q), q
}

// addRejected enqueues a mutation and marks it server-rejected.
func addRejected(t *testing.T, q *queue.OfflineQueue, message string) string {
	t.Helper()

	item, err := q.Add(models.MutationCountLine, map[string]interface{}{
		"_id": "line-1", "session_id": "s1", "item_code": "A", "counted_qty": 4,
	})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if !q.IncrementRetries(item.ID, message) {
		t.Fatalf("IncrementRetries failed for %s", item.ID)
	}
	return item.ID
}

// TestPendingOnlyReturnsRejected verifies untouched queue items are not
// reported as conflicts.
func TestPendingOnlyReturnsRejected(t *testing.T) {
	resolver, q := newTestResolver(t)

	rejectedID := addRejected(t, q, "duplicate count line")
	if _, err := q.Add(models.MutationSession, map[string]string{"id": "s2"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	pending := resolver.Pending()
	if len(pending) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(pending))
	}
	if pending[0].QueueID != rejectedID {
		t.Errorf("expected %s, got %s", rejectedID, pending[0].QueueID)
	}
	if pending[0].LastError != "duplicate count line" {
		t.Errorf("unexpected last error: %s", pending[0].LastError)
	}
}

// TestResolveDiscardRemovesFromQueue verifies the discard path.
func TestResolveDiscardRemovesFromQueue(t *testing.T) {
	resolver, q := newTestResolver(t)
	id := addRejected(t, q, "rejected")

	result, err := resolver.Resolve(id, ResolutionDiscard)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if result.Resolution != ResolutionDiscard {
		t.Errorf("unexpected resolution: %s", result.Resolution)
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue, got %d items", q.Len())
	}
}

// TestResolveRetryClearsRetryCount verifies the retry path resets the entry
// so the next drain resubmits it.
func TestResolveRetryClearsRetryCount(t *testing.T) {
	resolver, q := newTestResolver(t)
	id := addRejected(t, q, "rejected")

	if _, err := resolver.Resolve(id, ResolutionRetry); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	items := q.All()
	if len(items) != 1 {
		t.Fatalf("expected item to stay queued, got %d", len(items))
	}
	if items[0].Retries != 0 || items[0].LastError != "" {
		t.Errorf("expected cleared retry state, got retries=%d lastError=%q",
			items[0].Retries, items[0].LastError)
	}
	if len(resolver.Pending()) != 0 {
		t.Error("expected no pending conflicts after retry resolution")
	}
}

// TestResolveUnknownIDFails verifies resolution of a missing entry errors.
func TestResolveUnknownIDFails(t *testing.T) {
	resolver, _ := newTestResolver(t)

	_, err := resolver.Resolve("missing", ResolutionDiscard)
	if err == nil {
		t.Fatal("expected error for unknown queue id")
	}
	if err.Code != errors.ErrNotFound {
		t.Errorf("expected %s, got %s", errors.ErrNotFound, err.Code)
	}
}

// TestResolveUnknownResolutionFails verifies the closed resolution set.
func TestResolveUnknownResolutionFails(t *testing.T) {
	resolver, q := newTestResolver(t)
	id := addRejected(t, q, "rejected")

	_, err := resolver.Resolve(id, Resolution("merge"))
	if err == nil {
		t.Fatal("expected error for unknown resolution")
	}
	if q.Len() != 1 {
		t.Errorf("expected queue untouched, got %d items", q.Len())
	}
}

// TestResolveMultipleStopsAtFirstFailure verifies batch resolution returns
// partial results when an id is missing.
func TestResolveMultipleStopsAtFirstFailure(t *testing.T) {
	resolver, q := newTestResolver(t)
	first := addRejected(t, q, "rejected")
	second := addRejected(t, q, "rejected")

	results, err := resolver.ResolveMultiple([]string{first, "missing", second}, ResolutionDiscard)
	if err == nil {
		t.Fatal("expected error for missing id")
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result before failure, got %d", len(results))
	}
	if q.Len() != 1 {
		t.Errorf("expected 1 item left, got %d", q.Len())
	}
}

// TestDiscardAll verifies bulk discard leaves unrejected items alone.
func TestDiscardAll(t *testing.T) {
	resolver, q := newTestResolver(t)
	addRejected(t, q, "rejected")
	addRejected(t, q, "rejected")
	if _, err := q.Add(models.MutationUnknownItem, map[string]string{"barcode": "999"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if removed := resolver.DiscardAll(); removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}
	if q.Len() != 1 {
		t.Errorf("expected 1 item left, got %d", q.Len())
	}
}
