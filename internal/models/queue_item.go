package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/thantzin/stockcount/backend/internal/uuid"
)

// MutationType identifies the kind of queued write.
type MutationType string

const (
	MutationCountLine   MutationType = "count_line"
	MutationSession     MutationType = "session"
	MutationUnknownItem MutationType = "unknown_item"
)

// ValidMutationType reports whether t belongs to the closed mutation set.
func ValidMutationType(t MutationType) bool {
	switch t {
	case MutationCountLine, MutationSession, MutationUnknownItem:
		return true
	}
	return false
}

// OfflineQueueItem is a pending mutation awaiting server confirmation.
// Queue order is insertion order and doubles as the replay order.
type OfflineQueueItem struct {
	ID        string          `json:"id"`
	Type      MutationType    `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
	Retries   int             `json:"retries"`
	LastError string          `json:"last_error,omitempty"`
}

// NewOfflineQueueItem builds a queue item with a generated id of the form
// <type>_<unix-ms>_<rand6>. The timestamp prefix keeps ids roughly sortable
// by creation time; the suffix breaks ties within a millisecond.
func NewOfflineQueueItem(t MutationType, data json.RawMessage) *OfflineQueueItem {
	now := time.Now()
	return &OfflineQueueItem{
		ID:        fmt.Sprintf("%s_%d_%s", t, now.UnixMilli(), uuid.Suffix(6)),
		Type:      t,
		Data:      data,
		Timestamp: now.UTC().Format(time.RFC3339),
		Retries:   0,
	}
}
