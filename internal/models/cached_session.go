package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/thantzin/stockcount/backend/internal/errors"
)

// UndefinedSessionID is the corrupt key historically produced by clients that
// serialized a missing id. Sessions keyed by it are purged on read.
const UndefinedSessionID = "undefined"

// CachedSession is the canonical counting session record. Server and legacy
// payloads are normalized into this shape at the cache boundary.
type CachedSession struct {
	ID           string `json:"id"`
	Warehouse    string `json:"warehouse,omitempty"`
	Status       string `json:"status,omitempty"`
	Type         string `json:"type,omitempty"`
	StaffUser    string `json:"staff_user,omitempty"`
	StartedAt    string `json:"started_at,omitempty"`
	ClosedAt     string `json:"closed_at,omitempty"`
	ReconciledAt string `json:"reconciled_at,omitempty"`
	CachedAt     string `json:"cached_at"`
}

// Validate rejects sessions whose derived id is unusable as a cache key.
func (s *CachedSession) Validate() *errors.AppError {
	if strings.TrimSpace(s.ID) == "" || s.ID == UndefinedSessionID {
		return errors.New(errors.ErrSessionInvalid,
			fmt.Sprintf("session id %q is not a usable cache key", s.ID))
	}
	return nil
}

// Stamp sets CachedAt to the current time.
func (s *CachedSession) Stamp() {
	s.CachedAt = time.Now().UTC().Format(time.RFC3339)
}

// NormalizeSession converts a heterogeneous session payload into the
// canonical shape. The id is derived with a documented precedence:
// "id", then the legacy "session_id", then a generated "temp_<unix>" id
// for sessions created before the server has assigned one.
func NormalizeSession(raw map[string]interface{}) *CachedSession {
	id := stringField(raw, "id")
	if id == "" {
		id = stringField(raw, "session_id")
	}
	if id == "" {
		id = fmt.Sprintf("temp_%d", time.Now().Unix())
	}

	return &CachedSession{
		ID:           id,
		Warehouse:    stringField(raw, "warehouse"),
		Status:       stringField(raw, "status"),
		Type:         stringField(raw, "type"),
		StaffUser:    stringField(raw, "staff_user"),
		StartedAt:    stringField(raw, "started_at"),
		ClosedAt:     stringField(raw, "closed_at"),
		ReconciledAt: stringField(raw, "reconciled_at"),
	}
}
