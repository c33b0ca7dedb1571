// Package conversation builds bounded-size model context from a
// conversation's history. Four prioritized tiers compete for one token
// budget: recent messages, semantically similar messages, sub-chat
// summary markers, and cross-conversation knowledge. Tiers are
// evaluated strictly in order; every tier past the first is optional
// and its data-source failures degrade the result instead of failing
// the call.
package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"dev.helix.chat/internal/llm"
	"dev.helix.chat/internal/models"
	"dev.helix.chat/internal/storage"
)

// Tier attempt/keep gates as fractions of the token budget.
const (
	semanticAttemptGate = 0.50
	semanticKeepGate    = 0.60
	summaryAttemptGate  = 0.70
	summaryKeepGate     = 0.80
	crossAttemptGate    = 0.85
	crossKeepGate       = 0.95
)

const crossPairMaxChars = 200

// Embedder computes a transient query embedding for the semantic tier.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// AssembleOptions tune one assembly call. Zero values fall back to the
// documented defaults; the Enable flags come pre-set from
// DefaultAssembleOptions.
type AssembleOptions struct {
	RecentMessageCount    int
	SemanticResults       int
	SemanticThreshold     float64
	SubChatHistories      int
	PreviousConversations int
	MaxTokens             int

	EnableSemantic          bool
	EnableSubChatSummaries  bool
	EnablePreviousKnowledge bool
}

// DefaultAssembleOptions returns the standard configuration: recency
// and sub-chat summary tiers on, cross-conversation knowledge off.
func DefaultAssembleOptions() AssembleOptions {
	return AssembleOptions{
		RecentMessageCount:      10,
		SemanticResults:         5,
		SemanticThreshold:       0.7,
		SubChatHistories:        5,
		PreviousConversations:   3,
		MaxTokens:               8000,
		EnableSemantic:          true,
		EnableSubChatSummaries:  true,
		EnablePreviousKnowledge: false,
	}
}

func (o *AssembleOptions) applyDefaults() {
	d := DefaultAssembleOptions()
	if o.RecentMessageCount <= 0 {
		o.RecentMessageCount = d.RecentMessageCount
	}
	if o.SemanticResults <= 0 {
		o.SemanticResults = d.SemanticResults
	}
	if o.SemanticThreshold <= 0 {
		o.SemanticThreshold = d.SemanticThreshold
	}
	if o.SubChatHistories <= 0 {
		o.SubChatHistories = d.SubChatHistories
	}
	if o.PreviousConversations <= 0 {
		o.PreviousConversations = d.PreviousConversations
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = d.MaxTokens
	}
}

// AssemblyMetadata reports what each tier contributed and the final
// budget state. Degraded tiers are visible only through zero counts.
type AssemblyMetadata struct {
	RecentCount            int  `json:"recent_count"`
	SemanticCount          int  `json:"semantic_count"`
	SummaryCount           int  `json:"summary_count"`
	CrossConversationCount int  `json:"cross_conversation_count"`
	EstimatedTokens        int  `json:"estimated_tokens"`
	Truncated              bool `json:"truncated"`
}

// AssembledContext is the ordered message list handed to the provider
// plus the per-tier accounting.
type AssembledContext struct {
	Messages []llm.ChatMessage `json:"messages"`
	Metadata AssemblyMetadata  `json:"metadata"`
}

// Assembler packs prioritized context under a token budget.
type Assembler struct {
	messages      storage.MessageStore
	conversations storage.ConversationStore
	embedder      Embedder
	logger        *logrus.Logger
}

// NewAssembler creates an assembler. embedder may be nil, which
// disables the semantic tier.
func NewAssembler(messages storage.MessageStore, conversations storage.ConversationStore, embedder Embedder, logger *logrus.Logger) *Assembler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Assembler{
		messages:      messages,
		conversations: conversations,
		embedder:      embedder,
		logger:        logger,
	}
}

// Assemble builds the context for one generation call. The returned
// message order is: cross-conversation block, sub-chat summary block,
// semantic matches, then recent messages chronologically so the newest
// turn sits closest to the generation point. The error return is
// reserved for the recency tier: optional tiers degrade silently.
func (a *Assembler) Assemble(ctx context.Context, conversationID, queryText string, opts AssembleOptions) (*AssembledContext, error) {
	start := time.Now()
	opts.applyDefaults()
	budget := NewBudget(opts.MaxTokens)
	meta := AssemblyMetadata{}

	recent, err := a.collectRecent(ctx, conversationID, opts.RecentMessageCount)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent messages: %w", err)
	}
	for _, msg := range recent {
		budget.Add(EstimateTokens(msg.Content))
	}
	meta.RecentCount = len(recent)

	var semantic []*models.Message
	if opts.EnableSemantic && a.embedder != nil && budget.Below(semanticAttemptGate) {
		semantic = a.collectSemantic(ctx, conversationID, queryText, recent, opts, budget)
		meta.SemanticCount = len(semantic)
	}

	var summaryBlock string
	if opts.EnableSubChatSummaries && budget.Below(summaryAttemptGate) {
		block, count := a.collectSummaries(ctx, conversationID, opts.SubChatHistories)
		if block != "" && budget.FitsWithin(EstimateTokens(block), summaryKeepGate) {
			budget.Add(EstimateTokens(block))
			summaryBlock = block
			meta.SummaryCount = count
		}
	}

	var crossBlock string
	if opts.EnablePreviousKnowledge && budget.Below(crossAttemptGate) {
		block, count := a.collectCrossConversation(ctx, conversationID, opts.PreviousConversations)
		if block != "" && budget.FitsWithin(EstimateTokens(block), crossKeepGate) {
			budget.Add(EstimateTokens(block))
			crossBlock = block
			meta.CrossConversationCount = count
		}
	}

	meta.EstimatedTokens = budget.Used()
	meta.Truncated = budget.Exceeded()

	out := make([]llm.ChatMessage, 0, len(recent)+len(semantic)+2)
	if crossBlock != "" {
		out = append(out, llm.ChatMessage{Role: models.RoleSystem, Content: crossBlock})
	}
	if summaryBlock != "" {
		out = append(out, llm.ChatMessage{Role: models.RoleSystem, Content: summaryBlock})
	}
	for _, msg := range semantic {
		out = append(out, llm.ChatMessage{Role: msg.Role, Content: msg.Content})
	}
	for _, msg := range recent {
		out = append(out, llm.ChatMessage{Role: msg.Role, Content: msg.Content})
	}

	a.logger.WithFields(logrus.Fields{
		"conversation_id":  conversationID,
		"recent":           meta.RecentCount,
		"semantic":         meta.SemanticCount,
		"summaries":        meta.SummaryCount,
		"cross":            meta.CrossConversationCount,
		"estimated_tokens": meta.EstimatedTokens,
		"truncated":        meta.Truncated,
		"duration":         time.Since(start),
	}).Debug("Context assembled")

	return &AssembledContext{Messages: out, Metadata: meta}, nil
}

// collectRecent returns the last n non-marker messages in
// chronological order. Marker messages are the summary tier's carriers
// and must not double-appear here, so the fetch over-reads by the
// marker window before filtering.
func (a *Assembler) collectRecent(ctx context.Context, conversationID string, n int) ([]*models.Message, error) {
	fetched, err := a.messages.FindRecent(ctx, conversationID, n+DefaultAssembleOptions().SubChatHistories)
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.Message, 0, len(fetched))
	for _, msg := range fetched {
		if msg.IsMarker() {
			continue
		}
		filtered = append(filtered, msg)
	}
	if len(filtered) > n {
		filtered = filtered[len(filtered)-n:]
	}
	return filtered, nil
}

// collectSemantic embeds the query and pulls similar messages,
// deduplicated against the recency tier, adding candidates until the
// keep gate closes. Embedding or search failure disables the tier for
// this call only.
func (a *Assembler) collectSemantic(ctx context.Context, conversationID, queryText string, recent []*models.Message, opts AssembleOptions, budget *Budget) []*models.Message {
	embedding, err := a.embedder.Embed(ctx, queryText)
	if err != nil {
		a.logger.WithError(err).Warn("Semantic tier skipped: query embedding failed")
		return nil
	}

	candidates, err := a.messages.FindSimilar(ctx, conversationID, embedding, opts.SemanticResults, opts.SemanticThreshold)
	if err != nil {
		a.logger.WithError(err).Warn("Semantic tier skipped: similarity search failed")
		return nil
	}

	seen := make(map[string]struct{}, len(recent))
	for _, msg := range recent {
		seen[msg.ID] = struct{}{}
	}

	var kept []*models.Message
	for _, msg := range candidates {
		if !budget.Below(semanticKeepGate) {
			break
		}
		if _, dup := seen[msg.ID]; dup {
			continue
		}
		budget.Add(EstimateTokens(msg.Content))
		kept = append(kept, msg)
	}
	return kept
}

// collectSummaries synthesizes one system block from the most recent
// sub-chat summary markers. Returns the block and the marker count.
func (a *Assembler) collectSummaries(ctx context.Context, conversationID string, limit int) (string, int) {
	markers, err := a.messages.FindAnnotated(ctx, conversationID, limit)
	if err != nil {
		a.logger.WithError(err).Warn("Summary tier skipped: marker lookup failed")
		return "", 0
	}
	if len(markers) == 0 {
		return "", 0
	}

	var b strings.Builder
	b.WriteString("Previously resolved sub-conversations in this thread:\n")
	count := 0
	for _, msg := range markers {
		ann := msg.Annotation
		if ann == nil || ann.Summary == "" {
			continue
		}
		count++
		fmt.Fprintf(&b, "\n%d. %s", count, ann.Summary)
		if len(ann.Keywords) > 0 {
			fmt.Fprintf(&b, " (topics: %s)", strings.Join(ann.Keywords, ", "))
		}
	}
	if count == 0 {
		return "", 0
	}
	return b.String(), count
}

// collectCrossConversation gathers the tail of the user's other
// conversations as compact Q/A pairs. Returns the block and the number
// of contributing conversations.
func (a *Assembler) collectCrossConversation(ctx context.Context, conversationID string, limit int) (string, int) {
	conv, err := a.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		a.logger.WithError(err).Warn("Cross-conversation tier skipped: conversation lookup failed")
		return "", 0
	}

	others, err := a.conversations.ListRecentByUser(ctx, conv.UserID, limit, conversationID)
	if err != nil {
		a.logger.WithError(err).Warn("Cross-conversation tier skipped: conversation listing failed")
		return "", 0
	}
	if len(others) == 0 {
		return "", 0
	}

	var b strings.Builder
	b.WriteString("Context from your other recent conversations:\n")
	count := 0
	for _, other := range others {
		pairs := a.recentPairs(ctx, other.ID, 2)
		if len(pairs) == 0 {
			continue
		}
		count++
		title := other.Title
		if title == "" {
			title = "Untitled conversation"
		}
		fmt.Fprintf(&b, "\n[%s]\n", title)
		for _, pair := range pairs {
			b.WriteString(pair)
			b.WriteString("\n")
		}
	}
	if count == 0 {
		return "", 0
	}
	return b.String(), count
}

// recentPairs extracts the last n user/assistant exchanges of a
// conversation, each rendered as one line capped at crossPairMaxChars.
func (a *Assembler) recentPairs(ctx context.Context, conversationID string, n int) []string {
	msgs, err := a.messages.FindRecent(ctx, conversationID, 4*n)
	if err != nil {
		a.logger.WithError(err).Debug("Cross-conversation pair fetch failed")
		return nil
	}

	var pairs []string
	for i := len(msgs) - 1; i > 0 && len(pairs) < n; i-- {
		if msgs[i].Role != models.RoleAssistant || msgs[i-1].Role != models.RoleUser {
			continue
		}
		pair := truncateRunes(fmt.Sprintf("Q: %s\nA: %s", msgs[i-1].Content, msgs[i].Content), crossPairMaxChars)
		// prepend so pairs read oldest first
		pairs = append([]string{pair}, pairs...)
		i--
	}
	return pairs
}
