package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"dev.helix.chat/internal/models"
)

func TestLexicalScoreRanksBySummaryOverlap(t *testing.T) {
	strong := &models.MemoryEntry{Summary: "planned the database migration rollout"}
	weak := &models.MemoryEntry{Summary: "chatted about weekend plans"}

	query := "database migration"
	assert.Greater(t, LexicalScore(query, strong), LexicalScore(query, weak))
}

func TestLexicalScoreKeywordBonus(t *testing.T) {
	withKeywords := &models.MemoryEntry{
		Summary:  "resolved the incident",
		Keywords: []string{"kubernetes", "outage"},
	}
	without := &models.MemoryEntry{Summary: "resolved the incident"}

	query := "kubernetes outage"
	assert.Greater(t, LexicalScore(query, withKeywords), LexicalScore(query, without))
}

func TestLexicalScoreBounds(t *testing.T) {
	entry := &models.MemoryEntry{
		Summary:  "alpha beta gamma",
		Keywords: []string{"alpha", "beta", "gamma"},
	}

	assert.Equal(t, 0.0, LexicalScore("", entry))
	assert.Equal(t, 0.0, LexicalScore("zzz", entry))
	assert.LessOrEqual(t, LexicalScore("alpha beta gamma", entry), 1.0)
}

func TestLexicalScoreCaseInsensitive(t *testing.T) {
	entry := &models.MemoryEntry{Summary: "Reviewed the Deployment Pipeline"}
	assert.Greater(t, LexicalScore("DEPLOYMENT pipeline", entry), 0.0)
}
