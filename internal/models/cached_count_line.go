package models

import (
	"strings"
	"time"

	"github.com/thantzin/stockcount/backend/internal/errors"
)

// CachedCountLine is one scanned or hand-entered count observation within a
// session. Extra maps to free-form audit fields that ride along unmodified.
type CachedCountLine struct {
	ID         string                 `json:"_id"`
	SessionID  string                 `json:"session_id"`
	ItemCode   string                 `json:"item_code"`
	CountedQty float64                `json:"counted_qty"`
	SystemQty  *float64               `json:"system_qty,omitempty"`
	Variance   *float64               `json:"variance,omitempty"`
	CountedBy  string                 `json:"counted_by,omitempty"`
	CountedAt  string                 `json:"counted_at,omitempty"`
	CachedAt   string                 `json:"cached_at"`
	Extra      map[string]interface{} `json:"extra,omitempty"`
}

// Validate checks the mandatory count line fields.
func (l *CachedCountLine) Validate() *errors.AppError {
	if strings.TrimSpace(l.ID) == "" {
		return errors.New(errors.ErrCountLineInvalid, "_id is required")
	}
	if strings.TrimSpace(l.SessionID) == "" {
		return errors.New(errors.ErrCountLineInvalid, "session_id is required")
	}
	if strings.TrimSpace(l.ItemCode) == "" {
		return errors.New(errors.ErrCountLineInvalid, "item_code is required")
	}
	if l.CountedQty < 0 {
		return errors.New(errors.ErrCountLineInvalid, "counted_qty must be non-negative")
	}
	return nil
}

// Stamp sets CachedAt to the current time.
func (l *CachedCountLine) Stamp() {
	l.CachedAt = time.Now().UTC().Format(time.RFC3339)
}

// knownCountLineFields are lifted into typed fields during normalization;
// everything else lands in Extra.
var knownCountLineFields = map[string]bool{
	"_id": true, "session_id": true, "item_code": true, "counted_qty": true,
	"system_qty": true, "variance": true, "counted_by": true,
	"counted_at": true, "cached_at": true,
}

// NormalizeCountLine converts a loose count payload into the canonical
// shape. A counted_qty that is present but not numeric is a validation
// fault, not a zero: the caller must be able to reject it.
func NormalizeCountLine(raw map[string]interface{}) (*CachedCountLine, *errors.AppError) {
	line := &CachedCountLine{
		ID:        stringField(raw, "_id"),
		SessionID: stringField(raw, "session_id"),
		ItemCode:  stringField(raw, "item_code"),
		CountedBy: stringField(raw, "counted_by"),
		CountedAt: stringField(raw, "counted_at"),
	}

	qty, ok := numericValue(raw["counted_qty"])
	if !ok {
		return nil, errors.New(errors.ErrCountLineInvalid, "counted_qty must be numeric")
	}
	line.CountedQty = qty

	if v, ok := numericValue(raw["system_qty"]); ok {
		line.SystemQty = &v
	}
	if v, ok := numericValue(raw["variance"]); ok {
		line.Variance = &v
	}

	for k, v := range raw {
		if knownCountLineFields[k] {
			continue
		}
		if line.Extra == nil {
			line.Extra = make(map[string]interface{})
		}
		line.Extra[k] = v
	}

	return line, nil
}

// numericValue accepts the numeric types a JSON decode or FFI bridge produces.
func numericValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
