// Package services orchestrates the core operations behind the HTTP
// surface: sending a message through assembly and completion, and
// preparing streamed generations.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"dev.helix.chat/internal/background"
	"dev.helix.chat/internal/conversation"
	"dev.helix.chat/internal/llm"
	"dev.helix.chat/internal/models"
	"dev.helix.chat/internal/observability/metrics"
	"dev.helix.chat/internal/storage"
	"dev.helix.chat/internal/usage"
)

// ChatResult is the outcome of one blocking chat turn.
type ChatResult struct {
	Message  *models.Message               `json:"message"`
	Metadata conversation.AssemblyMetadata `json:"context_metadata"`
}

// StreamPlan is a prepared streamed generation: the user's message is
// already persisted and the context assembled.
type StreamPlan struct {
	UserMessage *models.Message
	Context     *conversation.AssembledContext
	Options     llm.CompletionOptions
}

// ChatService runs chat turns: persist the user's message, assemble
// context, call the provider, persist the reply. The user-message
// append and the primary completion are the only fatal steps;
// everything else degrades.
type ChatService struct {
	messages  storage.MessageStore
	assembler *conversation.Assembler
	provider  llm.Provider
	scheduler *background.EmbeddingScheduler
	usageLog  *usage.Log
	collector *metrics.Collector
	logger    *logrus.Logger

	assembleOpts conversation.AssembleOptions
	completion   llm.CompletionOptions
}

// NewChatService creates a chat service. scheduler, usageLog and
// collector may be nil; the corresponding side channels are skipped.
func NewChatService(
	messages storage.MessageStore,
	assembler *conversation.Assembler,
	provider llm.Provider,
	scheduler *background.EmbeddingScheduler,
	usageLog *usage.Log,
	collector *metrics.Collector,
	assembleOpts conversation.AssembleOptions,
	logger *logrus.Logger,
) *ChatService {
	if logger == nil {
		logger = logrus.New()
	}
	return &ChatService{
		messages:     messages,
		assembler:    assembler,
		provider:     provider,
		scheduler:    scheduler,
		usageLog:     usageLog,
		collector:    collector,
		assembleOpts: assembleOpts,
		completion:   llm.CompletionOptions{Temperature: 0.7, MaxTokens: 2048},
		logger:       logger,
	}
}

// SendMessage runs one blocking turn and returns the persisted
// assistant message.
func (s *ChatService) SendMessage(ctx context.Context, conversationID, content string) (*ChatResult, error) {
	plan, err := s.PrepareStream(ctx, conversationID, content)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := s.provider.Complete(ctx, &llm.CompletionRequest{
		Messages: plan.Context.Messages,
		Options:  plan.Options,
	})
	if err != nil {
		if s.collector != nil {
			s.collector.ProviderErrors.WithLabelValues("complete").Inc()
		}
		return nil, fmt.Errorf("completion failed: %w", err)
	}
	if s.collector != nil {
		s.collector.ProviderLatency.WithLabelValues("complete", resp.Model).Observe(time.Since(start).Seconds())
	}

	reply, err := s.messages.Append(ctx, &models.Message{
		ConversationID: conversationID,
		Role:           models.RoleAssistant,
		Content:        resp.Content,
		Metadata: &models.MessageMetadata{
			Tokens:           resp.TokensUsed,
			Model:            resp.Model,
			ProcessingTimeMs: time.Since(start).Milliseconds(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist assistant message: %w", err)
	}
	s.scheduleEmbedding(reply)
	s.recordUsage(conversationID, resp.Model, plan.Context.Metadata.EstimatedTokens, resp.TokensUsed, time.Since(start), false)

	return &ChatResult{Message: reply, Metadata: plan.Context.Metadata}, nil
}

// PrepareStream persists the user's message and assembles context for
// a generation. The append is fatal; assembly degradation is not.
func (s *ChatService) PrepareStream(ctx context.Context, conversationID, content string) (*StreamPlan, error) {
	if conversationID == "" {
		return nil, models.NewValidationError("conversation_id", "must not be empty")
	}
	if content == "" {
		return nil, models.NewValidationError("content", "must not be empty")
	}

	userMsg, err := s.messages.Append(ctx, &models.Message{
		ConversationID: conversationID,
		Role:           models.RoleUser,
		Content:        content,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist user message: %w", err)
	}
	s.scheduleEmbedding(userMsg)

	start := time.Now()
	assembled, err := s.assembler.Assemble(ctx, conversationID, content, s.assembleOpts)
	if err != nil {
		// recency tier failure; fall back to just the new message so
		// the turn can still complete
		s.logger.WithError(err).WithField("conversation_id", conversationID).Warn("Context assembly failed, using bare message")
		assembled = &conversation.AssembledContext{
			Messages: []llm.ChatMessage{{Role: models.RoleUser, Content: content}},
			Metadata: conversation.AssemblyMetadata{RecentCount: 1, EstimatedTokens: conversation.EstimateTokens(content)},
		}
	}
	if s.collector != nil {
		m := assembled.Metadata
		s.collector.ObserveAssembly(time.Since(start).Seconds(), m.RecentCount, m.SemanticCount, m.SummaryCount, m.CrossConversationCount, m.EstimatedTokens)
	}

	return &StreamPlan{
		UserMessage: userMsg,
		Context:     assembled,
		Options:     s.completion,
	}, nil
}

// RecordStreamUsage logs a finished streamed generation.
func (s *ChatService) RecordStreamUsage(conversationID, model string, promptTokens, outputTokens int, duration time.Duration) {
	s.recordUsage(conversationID, model, promptTokens, outputTokens, duration, true)
}

func (s *ChatService) scheduleEmbedding(msg *models.Message) {
	if s.scheduler != nil {
		s.scheduler.Schedule(msg)
	}
}

func (s *ChatService) recordUsage(conversationID, model string, promptTokens, outputTokens int, duration time.Duration, streamed bool) {
	if s.usageLog == nil {
		return
	}
	s.usageLog.Add(usage.Record{
		ConversationID: conversationID,
		Model:          model,
		PromptTokens:   promptTokens,
		OutputTokens:   outputTokens,
		Duration:       duration,
		Streamed:       streamed,
	})
}
