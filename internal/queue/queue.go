// Package queue provides the durable mutation queue: an ordered list of
// write operations captured while the server was unreachable, replayed in
// insertion order once connectivity returns.
package queue

import (
	"encoding/json"
	"sync"

	"github.com/thantzin/stockcount/backend/internal/errors"
	"github.com/thantzin/stockcount/backend/internal/kvstore"
	"github.com/thantzin/stockcount/backend/internal/logging"
	"github.com/thantzin/stockcount/backend/internal/models"
)

// KeyOfflineQueue is the storage key holding the full queue array.
const KeyOfflineQueue = "offline_queue"

// OfflineQueue is a durable FIFO of pending mutations. Every mutation is a
// whole-array read-modify-write against the store; a mutex serializes
// concurrent producers so an enqueue cannot drop a neighbor's write.
type OfflineQueue struct {
	mu    sync.Mutex
	store *kvstore.Store
}

// New creates an OfflineQueue on top of the given store.
func New(store *kvstore.Store) *OfflineQueue {
	return &OfflineQueue{store: store}
}

// Add appends a new pending mutation and persists the queue. The payload is
// serialized once at capture time so later replay is byte-stable.
func (q *OfflineQueue) Add(t models.MutationType, data interface{}) (*models.OfflineQueueItem, *errors.AppError) {
	if !models.ValidMutationType(t) {
		return nil, errors.New(errors.ErrInvalid, "unknown mutation type: "+string(t))
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrap(errors.ErrSerialize, "failed to serialize mutation payload", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.load()
	item := models.NewOfflineQueueItem(t, raw)
	items = append(items, *item)

	if !q.store.Set(KeyOfflineQueue, items, nil) {
		return nil, errors.New(errors.ErrStorage, "failed to persist offline queue")
	}

	logging.Info("queue: captured offline mutation",
		map[string]interface{}{"id": item.ID, "type": string(t), "pending": len(items)})

	return item, nil
}

// All returns the full queue in insertion order, empty on miss or fault.
func (q *OfflineQueue) All() []models.OfflineQueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load()
}

// Len returns the number of pending mutations.
func (q *OfflineQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.load())
}

// RemoveMany drops every item whose id is in ids and persists the remainder,
// preserving the order of survivors. Returns the number removed. Used after
// a batch sync confirms success, and by explicit conflict resolution.
func (q *OfflineQueue) RemoveMany(ids []string) int {
	if len(ids) == 0 {
		return 0
	}

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.load()
	kept := items[:0]
	for _, item := range items {
		if !drop[item.ID] {
			kept = append(kept, item)
		}
	}

	removed := len(items) - len(kept)
	if removed == 0 {
		return 0
	}

	if !q.store.Set(KeyOfflineQueue, kept, nil) {
		logging.Error("queue: failed to persist queue after removal", nil,
			map[string]interface{}{"removed": removed})
		return 0
	}

	return removed
}

// IncrementRetries bumps the retry counter for one item in place and records
// the failure message for later conflict listing.
func (q *OfflineQueue) IncrementRetries(id string, lastError string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.load()
	for i := range items {
		if items[i].ID == id {
			items[i].Retries++
			items[i].LastError = lastError
			return q.store.Set(KeyOfflineQueue, items, nil)
		}
	}
	return false
}

// ResetRetries zeroes the retry counter and failure flag for one item,
// re-arming it for replay. Used by the conflict resolution flow.
func (q *OfflineQueue) ResetRetries(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.load()
	for i := range items {
		if items[i].ID == id {
			items[i].Retries = 0
			items[i].LastError = ""
			return q.store.Set(KeyOfflineQueue, items, nil)
		}
	}
	return false
}

// Clear removes the whole queue.
func (q *OfflineQueue) Clear() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.store.Remove(KeyOfflineQueue)
}

// load reads the persisted array. Faults degrade to an empty queue; the
// store has already logged the cause.
func (q *OfflineQueue) load() []models.OfflineQueueItem {
	var items []models.OfflineQueueItem
	q.store.Get(KeyOfflineQueue, &items)
	return items
}
