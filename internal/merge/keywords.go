package merge

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// truncateRunes caps s at max characters without splitting a rune.
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "that": {}, "this": {}, "with": {},
	"was": {}, "were": {}, "are": {}, "have": {}, "has": {}, "had": {},
	"not": {}, "but": {}, "you": {}, "your": {}, "our": {}, "from": {},
	"they": {}, "them": {}, "then": {}, "than": {}, "will": {}, "would": {},
	"could": {}, "should": {}, "there": {}, "their": {}, "what": {},
	"when": {}, "where": {}, "which": {}, "while": {}, "about": {},
	"into": {}, "over": {}, "under": {}, "been": {}, "being": {},
	"also": {}, "just": {}, "some": {}, "such": {}, "here": {}, "very": {},
}

// extractKeywords is the fallback topic extraction used when the model
// returns an unparseable summary: stop-word-filtered longest distinct
// words, longest first.
func extractKeywords(text string, max int) []string {
	seen := make(map[string]struct{})
	var candidates []string
	for _, raw := range strings.Fields(strings.ToLower(text)) {
		word := strings.Trim(raw, ".,;:!?\"'()[]{}`*#")
		if len(word) < 4 {
			continue
		}
		if _, stop := stopWords[word]; stop {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		candidates = append(candidates, word)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return len(candidates[i]) > len(candidates[j])
	})
	if len(candidates) > max {
		candidates = candidates[:max]
	}
	return candidates
}
