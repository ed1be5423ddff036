// Package conflict handles mutations the server rejected during a drain.
// Rejected entries stay in the offline queue with their server message
// recorded; this package surfaces them for review and applies the chosen
// resolution.
package conflict

import (
	"encoding/json"
	"time"

	"github.com/thantzin/stockcount/backend/internal/errors"
	"github.com/thantzin/stockcount/backend/internal/logging"
	"github.com/thantzin/stockcount/backend/internal/models"
	"github.com/thantzin/stockcount/backend/internal/queue"
)

// Resolution defines how a rejected mutation is settled.
type Resolution string

const (
	// ResolutionDiscard drops the local mutation; the server version stands.
	ResolutionDiscard Resolution = "discard"
	// ResolutionRetry clears the retry count so the next drain resubmits
	// the mutation as-is.
	ResolutionRetry Resolution = "retry"
)

// Conflict is a queued mutation the server has rejected at least once.
type Conflict struct {
	QueueID    string              `json:"queue_id"`
	Type       models.MutationType `json:"type"`
	Data       json.RawMessage     `json:"data"`
	QueuedAt   string              `json:"queued_at"`
	Retries    int                 `json:"retries"`
	LastError  string              `json:"last_error"`
	DetectedAt int64               `json:"detected_at"`
}

// ResolveResult records the outcome of settling one conflict.
type ResolveResult struct {
	QueueID    string     `json:"queue_id"`
	Resolution Resolution `json:"resolution"`
	ResolvedAt int64      `json:"resolved_at"`
}

// Resolver surfaces rejected queue entries and applies resolutions.
type Resolver struct {
	queue *queue.OfflineQueue
}

// NewResolver creates a Resolver over the offline queue.
func NewResolver(q *queue.OfflineQueue) *Resolver {
	return &Resolver{queue: q}
}

// Pending returns every queued mutation the server has rejected. Entries
// that have never been attempted, or failed only on transport faults during
// a drain, are not conflicts and are excluded.
func (r *Resolver) Pending() []Conflict {
	items := r.queue.All()
	now := time.Now().Unix()

	conflicts := make([]Conflict, 0)
	for _, item := range items {
		if item.Retries == 0 || item.LastError == "" {
			continue
		}
		conflicts = append(conflicts, Conflict{
			QueueID:    item.ID,
			Type:       item.Type,
			Data:       item.Data,
			QueuedAt:   item.Timestamp,
			Retries:    item.Retries,
			LastError:  item.LastError,
			DetectedAt: now,
		})
	}

	if len(conflicts) > 0 {
		logging.Warn("Server-rejected mutations awaiting review",
			map[string]interface{}{"count": len(conflicts)})
	}

	return conflicts
}

// Resolve settles one rejected mutation.
func (r *Resolver) Resolve(queueID string, resolution Resolution) (*ResolveResult, *errors.AppError) {
	if queueID == "" {
		return nil, errors.New(errors.ErrInvalid, "queue id is required")
	}

	var applied bool
	switch resolution {
	case ResolutionDiscard:
		applied = r.queue.RemoveMany([]string{queueID}) == 1
	case ResolutionRetry:
		applied = r.queue.ResetRetries(queueID)
	default:
		return nil, errors.New(errors.ErrInvalid, "unknown resolution: "+string(resolution))
	}

	if !applied {
		return nil, errors.New(errors.ErrNotFound, "queue item not found: "+queueID)
	}

	logging.Info("Conflict resolved",
		map[string]interface{}{
			"queue_id":   queueID,
			"resolution": string(resolution),
		})

	return &ResolveResult{
		QueueID:    queueID,
		Resolution: resolution,
		ResolvedAt: time.Now().Unix(),
	}, nil
}

// ResolveMultiple settles a batch of conflicts with the same resolution.
// It stops at the first failure and returns the results so far.
func (r *Resolver) ResolveMultiple(queueIDs []string, resolution Resolution) ([]*ResolveResult, *errors.AppError) {
	results := make([]*ResolveResult, 0, len(queueIDs))

	for _, id := range queueIDs {
		result, err := r.Resolve(id, resolution)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}

	return results, nil
}

// DiscardAll drops every rejected mutation and returns how many were removed.
func (r *Resolver) DiscardAll() int {
	pending := r.Pending()
	if len(pending) == 0 {
		return 0
	}

	ids := make([]string, 0, len(pending))
	for _, c := range pending {
		ids = append(ids, c.QueueID)
	}

	removed := r.queue.RemoveMany(ids)
	logging.Info("Discarded rejected mutations",
		map[string]interface{}{"count": removed})
	return removed
}
