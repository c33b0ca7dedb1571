package llm

import "context"

// Provider is the generation backend consumed by the assembler, the
// streaming engine and the merge pipeline.
type Provider interface {
	// Complete performs a blocking completion.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// CompleteStream performs an incremental completion. The returned
	// channel is closed after a terminal event (Done set). Cancelling
	// ctx aborts the in-flight request.
	CompleteStream(ctx context.Context, req *CompletionRequest) (<-chan *StreamEvent, error)

	// Embed returns the embedding vector for one text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns embeddings for several texts in one call.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// SummarizeStructured asks the model for a structured summary of a
	// transcript. A hard error is returned only when no response was
	// produced at all; schema violations come back in the outcome's
	// ParseErr so the caller can take the degrade branch.
	SummarizeStructured(ctx context.Context, transcript string) (*SummaryOutcome, error)
}
