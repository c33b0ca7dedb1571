package services

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.helix.chat/internal/conversation"
	"dev.helix.chat/internal/llm"
	"dev.helix.chat/internal/models"
	"dev.helix.chat/internal/storage"
	"dev.helix.chat/internal/usage"
)

type mockProvider struct {
	completeFunc func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error)
}

func (m *mockProvider) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return m.completeFunc(ctx, req)
}
func (m *mockProvider) CompleteStream(ctx context.Context, req *llm.CompletionRequest) (<-chan *llm.StreamEvent, error) {
	return nil, errors.New("not implemented")
}
func (m *mockProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}
func (m *mockProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("not implemented")
}
func (m *mockProvider) SummarizeStructured(ctx context.Context, transcript string) (*llm.SummaryOutcome, error) {
	return nil, errors.New("not implemented")
}

func newService(t *testing.T, provider llm.Provider) (*ChatService, *storage.InMemoryMessageStore, *usage.Log) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	messages := storage.NewInMemoryMessageStore()
	conversations := storage.NewInMemoryConversationStore()
	assembler := conversation.NewAssembler(messages, conversations, nil, logger)
	usageLog := usage.NewLog(16)

	svc := NewChatService(messages, assembler, provider, nil, usageLog, nil, conversation.DefaultAssembleOptions(), logger)
	return svc, messages, usageLog
}

func TestSendMessagePersistsBothTurns(t *testing.T) {
	svc, messages, usageLog := newService(t, &mockProvider{
		completeFunc: func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
			require.NotEmpty(t, req.Messages)
			last := req.Messages[len(req.Messages)-1]
			assert.Equal(t, models.RoleUser, last.Role)
			return &llm.CompletionResponse{Content: "hi there", Model: "test-model", TokensUsed: 7}, nil
		},
	})

	result, err := svc.SendMessage(context.Background(), "conv-1", "hello")
	require.NoError(t, err)

	assert.Equal(t, models.RoleAssistant, result.Message.Role)
	assert.Equal(t, "hi there", result.Message.Content)
	assert.Equal(t, 1, result.Metadata.RecentCount)

	all, err := messages.FindRecent(context.Background(), "conv-1", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, models.RoleUser, all[0].Role)
	assert.Equal(t, models.RoleAssistant, all[1].Role)

	totals := usageLog.Summarize()
	assert.Equal(t, 1, totals.Calls)
	assert.Equal(t, 7, totals.OutputTokens)
}

func TestSendMessageValidatesInput(t *testing.T) {
	svc, _, _ := newService(t, &mockProvider{})

	_, err := svc.SendMessage(context.Background(), "", "hello")
	assert.True(t, models.IsValidation(err))

	_, err = svc.SendMessage(context.Background(), "conv-1", "")
	assert.True(t, models.IsValidation(err))
}

func TestSendMessageCompletionFailureIsFatal(t *testing.T) {
	svc, messages, _ := newService(t, &mockProvider{
		completeFunc: func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return nil, errors.New("provider down")
		},
	})

	_, err := svc.SendMessage(context.Background(), "conv-1", "hello")
	require.Error(t, err)

	// the user's message survives the failed completion
	all, findErr := messages.FindRecent(context.Background(), "conv-1", 0)
	require.NoError(t, findErr)
	require.Len(t, all, 1)
	assert.Equal(t, models.RoleUser, all[0].Role)
}

func TestPrepareStreamAssemblesContext(t *testing.T) {
	svc, messages, _ := newService(t, &mockProvider{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := messages.Append(ctx, &models.Message{ConversationID: "conv-1", Role: models.RoleUser, Content: "earlier"})
		require.NoError(t, err)
	}

	plan, err := svc.PrepareStream(ctx, "conv-1", "new question")
	require.NoError(t, err)

	assert.Equal(t, "new question", plan.UserMessage.Content)
	assert.Equal(t, 4, plan.Context.Metadata.RecentCount)
	assert.Equal(t, "new question", plan.Context.Messages[len(plan.Context.Messages)-1].Content)
}
