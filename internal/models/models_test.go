// Package models tests for entity validation and normalization.
package models

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/thantzin/stockcount/backend/internal/errors"
)

// TestCachedItemValidate verifies the mandatory item fields.
func TestCachedItemValidate(t *testing.T) {
	tests := []struct {
		name    string
		item    CachedItem
		wantErr bool
	}{
		{"valid", CachedItem{ItemCode: "ITM-001", ItemName: "Bottle"}, false},
		{"missing code", CachedItem{ItemName: "Bottle"}, true},
		{"missing name", CachedItem{ItemCode: "ITM-001"}, true},
		{"whitespace name", CachedItem{ItemCode: "ITM-001", ItemName: "   "}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.item.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && err.Code != errors.ErrItemInvalid {
				t.Errorf("expected ITEM_INVALID code, got %s", err.Code)
			}
		})
	}
}

// TestNormalizeSessionIDPrecedence verifies the id alias precedence
// (id, then legacy session_id, then a generated temp id).
func TestNormalizeSessionIDPrecedence(t *testing.T) {
	s := NormalizeSession(map[string]interface{}{
		"id":         "SES-1",
		"session_id": "legacy-9",
	})
	if s.ID != "SES-1" {
		t.Errorf("expected id to win, got %q", s.ID)
	}

	s = NormalizeSession(map[string]interface{}{
		"session_id": "legacy-9",
		"warehouse":  "WH-A",
	})
	if s.ID != "legacy-9" {
		t.Errorf("expected legacy session_id fallback, got %q", s.ID)
	}
	if s.Warehouse != "WH-A" {
		t.Errorf("expected warehouse carried over, got %q", s.Warehouse)
	}

	s = NormalizeSession(map[string]interface{}{"status": "open"})
	if !strings.HasPrefix(s.ID, "temp_") {
		t.Errorf("expected generated temp id, got %q", s.ID)
	}
}

// TestCachedSessionValidateUndefined verifies the corrupt key rejection.
func TestCachedSessionValidateUndefined(t *testing.T) {
	s := CachedSession{ID: UndefinedSessionID}
	err := s.Validate()
	if err == nil {
		t.Fatal("expected validation error for the undefined key")
	}
	if err.Code != errors.ErrSessionInvalid {
		t.Errorf("expected SESSION_INVALID code, got %s", err.Code)
	}
}

// TestNormalizeCountLine verifies typed extraction and the Extra passthrough.
func TestNormalizeCountLine(t *testing.T) {
	line, err := NormalizeCountLine(map[string]interface{}{
		"_id":         "cl-1",
		"session_id":  "SES-1",
		"item_code":   "ITM-001",
		"counted_qty": float64(12),
		"system_qty":  float64(10),
		"counted_by":  "aye.min",
		"rack":        "R-14",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if line.CountedQty != 12 {
		t.Errorf("counted_qty = %v", line.CountedQty)
	}
	if line.SystemQty == nil || *line.SystemQty != 10 {
		t.Errorf("system_qty = %v", line.SystemQty)
	}
	if line.Extra["rack"] != "R-14" {
		t.Errorf("expected rack in Extra, got %v", line.Extra)
	}
}

// TestNormalizeCountLineRejectsNonNumericQty verifies the numeric guard.
func TestNormalizeCountLineRejectsNonNumericQty(t *testing.T) {
	_, err := NormalizeCountLine(map[string]interface{}{
		"_id":         "cl-1",
		"session_id":  "SES-1",
		"item_code":   "ITM-001",
		"counted_qty": "twelve",
	})
	if err == nil {
		t.Fatal("expected error for non-numeric counted_qty")
	}
	if err.Code != errors.ErrCountLineInvalid {
		t.Errorf("expected COUNT_LINE_INVALID code, got %s", err.Code)
	}
}

// TestCachedCountLineValidate verifies mandatory fields and the qty range.
func TestCachedCountLineValidate(t *testing.T) {
	valid := CachedCountLine{ID: "cl-1", SessionID: "SES-1", ItemCode: "ITM-001", CountedQty: 3}
	if err := valid.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	negative := valid
	negative.CountedQty = -1
	if negative.Validate() == nil {
		t.Error("expected error for negative counted_qty")
	}

	missing := valid
	missing.SessionID = ""
	if missing.Validate() == nil {
		t.Error("expected error for missing session_id")
	}
}

// TestNewOfflineQueueItem verifies id shape and initial state.
func TestNewOfflineQueueItem(t *testing.T) {
	data, _ := json.Marshal(map[string]string{"item_code": "ITM-001"})
	item := NewOfflineQueueItem(MutationCountLine, data)

	if !strings.HasPrefix(item.ID, "count_line_") {
		t.Errorf("expected type-prefixed id, got %q", item.ID)
	}
	if item.Retries != 0 {
		t.Errorf("expected zero retries, got %d", item.Retries)
	}
	if item.Timestamp == "" {
		t.Error("expected timestamp to be set")
	}

	// ids generated back to back must not collide
	other := NewOfflineQueueItem(MutationCountLine, data)
	if other.ID == item.ID {
		t.Error("expected distinct ids for consecutive items")
	}
}

// TestValidMutationType verifies the closed type set.
func TestValidMutationType(t *testing.T) {
	for _, typ := range []MutationType{MutationCountLine, MutationSession, MutationUnknownItem} {
		if !ValidMutationType(typ) {
			t.Errorf("expected %s to be valid", typ)
		}
	}
	if ValidMutationType("delete_everything") {
		t.Error("expected unknown type to be invalid")
	}
}
