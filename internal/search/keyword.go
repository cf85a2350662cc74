package search

import (
	"strings"

	"github.com/paperdock/paperdock/internal/library"
)

// Keyword scoring weights. A title hit earns a flat bonus on top of the
// per-occurrence counts, so title matches dominate body matches.
const (
	titleHitWeight      = 2.0
	titleCountWeight    = 0.5
	abstractCountWeight = 0.3
	textCountWeight     = 0.1
)

// keywordSearch scores records by case-insensitive substring matching of
// the whole query. Zero-score records are excluded; ties keep input order.
func keywordSearch(query string, records []library.Record, topK int) []Result {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil
	}

	results := make([]Result, 0, len(records))
	for _, rec := range records {
		title := strings.ToLower(rec.Title)
		score := 0.0
		if strings.Contains(title, needle) {
			score += titleHitWeight
		}
		score += titleCountWeight * float64(strings.Count(title, needle))
		score += abstractCountWeight * float64(strings.Count(strings.ToLower(rec.Abstract), needle))
		score += textCountWeight * float64(strings.Count(strings.ToLower(rec.Text), needle))
		if score == 0 {
			continue
		}
		results = append(results, Result{Record: rec, Score: score})
	}
	return top(results, topK)
}
