// Package models provides data model definitions for the offline sync core.
package models

import (
	"strings"
	"time"

	"github.com/thantzin/stockcount/backend/internal/errors"
)

// CachedItem is a denormalized snapshot of a catalog item kept for offline
// lookups and barcode scans.
type CachedItem struct {
	ItemCode     string  `json:"item_code"`
	Barcode      string  `json:"barcode,omitempty"`
	ItemName     string  `json:"item_name"`
	Description  string  `json:"description,omitempty"`
	UOM          string  `json:"uom,omitempty"`
	CurrentStock float64 `json:"current_stock"`
	CachedAt     string  `json:"cached_at"`
}

// Validate checks the mandatory item fields.
func (i *CachedItem) Validate() *errors.AppError {
	if strings.TrimSpace(i.ItemCode) == "" {
		return errors.New(errors.ErrItemInvalid, "item_code is required")
	}
	if strings.TrimSpace(i.ItemName) == "" {
		return errors.New(errors.ErrItemInvalid, "item_name is required")
	}
	return nil
}

// Stamp sets CachedAt to the current time.
func (i *CachedItem) Stamp() {
	i.CachedAt = time.Now().UTC().Format(time.RFC3339)
}

// NormalizeItem builds a CachedItem from a loose server payload. Field
// values that are absent or of the wrong type are left zero; validation of
// the mandatory fields happens separately at the cache boundary.
func NormalizeItem(raw map[string]interface{}) *CachedItem {
	return &CachedItem{
		ItemCode:     stringField(raw, "item_code"),
		Barcode:      stringField(raw, "barcode"),
		ItemName:     stringField(raw, "item_name"),
		Description:  stringField(raw, "description"),
		UOM:          stringField(raw, "uom"),
		CurrentStock: numberField(raw, "current_stock"),
	}
}

// stringField extracts a string value, tolerating absent or mistyped fields.
func stringField(raw map[string]interface{}, key string) string {
	if v, ok := raw[key].(string); ok {
		return v
	}
	return ""
}

// numberField extracts a numeric value from the usual JSON decodings.
func numberField(raw map[string]interface{}, key string) float64 {
	switch v := raw[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}
