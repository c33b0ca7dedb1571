package memory

import (
	"strings"

	"dev.helix.chat/internal/models"
)

// LexicalScore computes a fuzzy relevance score in [0,1] for an entry
// against a query. Summary word overlap carries most of the weight;
// keyword hits add a bonus so short entries with matching topics still
// rank.
func LexicalScore(query string, entry *models.MemoryEntry) float64 {
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return 0
	}

	summary := strings.ToLower(entry.Summary)
	keywords := make([]string, len(entry.Keywords))
	for i, k := range entry.Keywords {
		keywords[i] = strings.ToLower(k)
	}

	summaryMatches := 0
	keywordMatches := 0
	for _, word := range words {
		if strings.Contains(summary, word) {
			summaryMatches++
		}
		for _, k := range keywords {
			if k == word || strings.Contains(k, word) || strings.Contains(word, k) {
				keywordMatches++
				break
			}
		}
	}

	score := 0.7*float64(summaryMatches)/float64(len(words)) +
		0.3*float64(keywordMatches)/float64(len(words))
	if score > 1 {
		score = 1
	}
	return score
}
