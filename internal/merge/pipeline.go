// Package merge folds a finished sub-chat back into its parent
// conversation: render the transcript, summarize it, resolve the
// sub-chat, inject a summary marker into the parent, and optionally
// store a long-term memory entry. The steps are deliberately not
// transactional; the pipeline is at-least-once, best-effort.
package merge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"dev.helix.chat/internal/llm"
	"dev.helix.chat/internal/memory"
	"dev.helix.chat/internal/models"
	"dev.helix.chat/internal/storage"
)

const degradedSummaryMaxChars = 500
const degradedKeywordCount = 5

// Result reports what one merge accomplished. MemoryStored is false
// both when memory was skipped (opt-outs) and when the write failed;
// Degraded marks the heuristic summary branch.
type Result struct {
	SubChatID         string                 `json:"sub_chat_id"`
	Summary           *llm.StructuredSummary `json:"summary"`
	InjectedMessageID string                 `json:"injected_message_id"`
	MemoryStored      bool                   `json:"memory_stored"`
	Degraded          bool                   `json:"degraded"`
}

// Pipeline executes merges. memoryIndex may be nil when long-term
// memory is disabled for the deployment.
type Pipeline struct {
	messages      storage.MessageStore
	conversations storage.ConversationStore
	provider      llm.Provider
	memoryIndex   *memory.Index
	logger        *logrus.Logger
}

// NewPipeline creates a merge pipeline.
func NewPipeline(messages storage.MessageStore, conversations storage.ConversationStore, provider llm.Provider, memoryIndex *memory.Index, logger *logrus.Logger) *Pipeline {
	if logger == nil {
		logger = logrus.New()
	}
	return &Pipeline{
		messages:      messages,
		conversations: conversations,
		provider:      provider,
		memoryIndex:   memoryIndex,
		logger:        logger,
	}
}

// Merge runs the five-step pipeline for one sub-chat. Precondition
// violations are distinct rejections before any side effect. A failure
// after the sub-chat is resolved does not roll resolution back.
func (p *Pipeline) Merge(ctx context.Context, subChatID string) (*Result, error) {
	sub, err := p.conversations.GetSubChat(ctx, subChatID)
	if err != nil {
		return nil, err
	}
	switch sub.Status {
	case models.SubChatStatusResolved:
		return nil, models.ErrSubChatResolved
	case models.SubChatStatusCancelled:
		return nil, models.ErrSubChatCancelled
	}

	transcript, err := p.messages.FindRecent(ctx, subChatID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load sub-chat transcript: %w", err)
	}
	if len(transcript) == 0 {
		return nil, models.ErrEmptyTranscript
	}

	summary, degraded, err := p.summarize(ctx, transcript)
	if err != nil {
		return nil, err
	}

	if _, err := p.conversations.ResolveSubChat(ctx, subChatID, summary.Summary); err != nil {
		return nil, fmt.Errorf("failed to resolve sub-chat: %w", err)
	}
	mergedAt := time.Now()

	injected, err := p.injectMarker(ctx, sub, summary, mergedAt)
	if err != nil {
		// resolution already happened; the caller sees the failure but
		// the sub-chat stays resolved
		return nil, fmt.Errorf("failed to inject summary into parent: %w", err)
	}

	result := &Result{
		SubChatID:         subChatID,
		Summary:           summary,
		InjectedMessageID: injected.ID,
		Degraded:          degraded,
	}
	result.MemoryStored = p.storeMemory(ctx, sub, summary, mergedAt)
	return result, nil
}

// summarize renders the transcript and requests a structured summary.
// Schema violations take the degrade branch; only a call that produced
// no response at all is a hard failure.
func (p *Pipeline) summarize(ctx context.Context, transcript []*models.Message) (*llm.StructuredSummary, bool, error) {
	rendered := RenderTranscript(transcript)

	outcome, err := p.provider.SummarizeStructured(ctx, rendered)
	if err != nil {
		return nil, false, fmt.Errorf("summarization produced no response: %w", err)
	}
	if outcome.ParseErr == nil {
		return outcome.Structured, false, nil
	}

	p.logger.WithError(outcome.ParseErr).Warn("Summary schema invalid, using degraded extraction")
	raw := truncateRunes(outcome.Raw, degradedSummaryMaxChars)
	return &llm.StructuredSummary{
		Summary:   raw,
		Actions:   []string{},
		Artifacts: []string{},
		Keywords:  extractKeywords(outcome.Raw, degradedKeywordCount),
	}, true, nil
}

// injectMarker appends the formatted summary message to the parent
// conversation, tagged with a typed annotation carrying the structured
// fields.
func (p *Pipeline) injectMarker(ctx context.Context, sub *models.SubChat, summary *llm.StructuredSummary, mergedAt time.Time) (*models.Message, error) {
	return p.messages.Append(ctx, &models.Message{
		ConversationID: sub.ParentConversationID,
		Role:           models.RoleSystem,
		Content:        RenderInjection(summary),
		Metadata:       &models.MessageMetadata{SubChatID: sub.ID},
		Annotation: &models.SummaryAnnotation{
			SubChatID: sub.ID,
			Summary:   summary.Summary,
			Actions:   summary.Actions,
			Artifacts: summary.Artifacts,
			Keywords:  summary.Keywords,
			MergedAt:  mergedAt,
		},
	})
}

// storeMemory upserts the long-term memory entry when both the
// sub-chat and the user opted in. Failures are logged and reported as
// a false flag; they never undo the merge.
func (p *Pipeline) storeMemory(ctx context.Context, sub *models.SubChat, summary *llm.StructuredSummary, mergedAt time.Time) bool {
	if p.memoryIndex == nil || !sub.StoreMemory {
		return false
	}

	user, err := p.conversations.GetUser(ctx, sub.UserID)
	if err != nil {
		p.logger.WithError(err).WithField("user_id", sub.UserID).Warn("Memory step skipped: user lookup failed")
		return false
	}
	if !user.MemoryEnabled {
		return false
	}

	entry := &models.MemoryEntry{
		ID:             sub.ID,
		ConversationID: sub.ParentConversationID,
		UserID:         sub.UserID,
		Summary:        summary.Summary,
		Keywords:       summary.Keywords,
		Actions:        summary.Actions,
		Artifacts:      summary.Artifacts,
		MergedAt:       mergedAt,
	}

	if embedding, err := p.provider.Embed(ctx, summary.Summary); err != nil {
		p.logger.WithError(err).Debug("Memory entry stored without embedding")
	} else {
		entry.Embedding = embedding
	}

	if err := p.memoryIndex.Upsert(ctx, entry); err != nil {
		p.logger.WithError(err).WithField("sub_chat_id", sub.ID).Warn("Memory write failed after merge")
		return false
	}
	return true
}

// RenderTranscript formats messages as chronological, timestamped,
// role-labeled lines.
func RenderTranscript(messages []*models.Message) string {
	var b strings.Builder
	for i, msg := range messages {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%s] %s: %s",
			msg.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			roleLabel(msg.Role),
			msg.Content,
		)
	}
	return b.String()
}

func roleLabel(role models.Role) string {
	switch role {
	case models.RoleUser:
		return "User"
	case models.RoleAssistant:
		return "Assistant"
	case models.RoleSystem:
		return "System"
	}
	return string(role)
}

// RenderInjection builds the marker message body. Sections for
// actions, artifacts and topics appear only when non-empty.
func RenderInjection(summary *llm.StructuredSummary) string {
	var b strings.Builder
	b.WriteString("## Sub-chat Summary\n\n")
	b.WriteString(summary.Summary)

	if len(summary.Actions) > 0 {
		b.WriteString("\n\n### Actions Taken\n")
		for _, action := range summary.Actions {
			fmt.Fprintf(&b, "- %s\n", action)
		}
	}
	if len(summary.Artifacts) > 0 {
		b.WriteString("\n\n### Artifacts Created\n")
		for _, artifact := range summary.Artifacts {
			fmt.Fprintf(&b, "- %s\n", artifact)
		}
	}
	if len(summary.Keywords) > 0 {
		b.WriteString("\n\n### Key Topics\n")
		b.WriteString(strings.Join(summary.Keywords, ", "))
	}
	return b.String()
}
