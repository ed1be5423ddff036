package cache

import (
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/thantzin/stockcount/backend/internal/models"
)

// Fuzzy fallback tuning. The edit-distance pass only runs for queries longer
// than fuzzyMinQueryLen that found no substring match, which keeps scan-gun
// typo recovery without paying the O(n*m) cost on every keystroke.
const (
	fuzzyMinQueryLen  = 3
	fuzzyMaxDistance  = 2
)

// SearchItems finds cached items by case-insensitive substring match against
// item_code, item_name, and barcode. When a longer query matches nothing, a
// Levenshtein pass over item_name recovers near-miss spellings (OCR and
// scan-entry typos).
func (c *EntityCache) SearchItems(query string) []models.CachedItem {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	items := c.Items()
	var results []models.CachedItem

	for _, item := range items {
		if strings.Contains(strings.ToLower(item.ItemCode), q) ||
			strings.Contains(strings.ToLower(item.ItemName), q) ||
			(item.Barcode != "" && strings.Contains(strings.ToLower(item.Barcode), q)) {
			results = append(results, item)
		}
	}

	if len(results) == 0 && len(q) > fuzzyMinQueryLen {
		for _, item := range items {
			if levenshtein.ComputeDistance(q, strings.ToLower(item.ItemName)) <= fuzzyMaxDistance {
				results = append(results, item)
			}
		}
	}

	return results
}
