package domain

import (
	"slices"
	"strings"
)

// DefaultNewsKeywords are the terms that make an article relevant to herd
// movement and cattle-related conflict.
var DefaultNewsKeywords = []string{
	"cattle", "livestock", "herder", "pastoralist", "raid", "migration",
	"grazing", "drought", "flood", "displacement", "clash", "revenge",
}

// ScoreArticle returns a relevance in [0,1] and the keywords found in the
// title or summary. Three or more distinct hits count as fully relevant.
func ScoreArticle(title, summary string, keywords []string) (float64, []string) {
	text := strings.ToLower(title + " " + summary)
	var hits []string
	for _, k := range keywords {
		k = strings.ToLower(k)
		if k != "" && strings.Contains(text, k) && !slices.Contains(hits, k) {
			hits = append(hits, k)
		}
	}
	return min(1, float64(len(hits))/3), hits
}

// Mentions reports whether the article text names any of the terms,
// case-insensitively.
func (a Article) Mentions(terms ...string) bool {
	text := strings.ToLower(a.Title + " " + a.Summary)
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && strings.Contains(text, t) {
			return true
		}
	}
	return false
}
