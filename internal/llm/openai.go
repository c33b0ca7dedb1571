package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultBaseURL        = "https://api.openai.com/v1"
	defaultModel          = "gpt-4o-mini"
	defaultEmbeddingModel = "text-embedding-3-small"
)

const summarizePrompt = `Summarize the following conversation transcript. Respond with a single JSON object and nothing else, using exactly these fields:
{"summary": "...", "actions": ["..."], "artifacts": ["..."], "keywords": ["..."]}
"summary" is a concise paragraph, "actions" lists actions taken, "artifacts" lists files or outputs created, "keywords" lists the key topics.`

// OpenAIProvider talks to an OpenAI-compatible chat completion API.
type OpenAIProvider struct {
	apiKey         string
	baseURL        string
	model          string
	embeddingModel string
	httpClient     *http.Client
	retryConfig    RetryConfig
	logger         *logrus.Logger
}

// OpenAIOption customizes the provider.
type OpenAIOption func(*OpenAIProvider)

// WithEmbeddingModel overrides the embedding model.
func WithEmbeddingModel(model string) OpenAIOption {
	return func(p *OpenAIProvider) { p.embeddingModel = model }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) OpenAIOption {
	return func(p *OpenAIProvider) { p.httpClient = client }
}

// WithRetryConfig overrides the retry policy.
func WithRetryConfig(cfg RetryConfig) OpenAIOption {
	return func(p *OpenAIProvider) { p.retryConfig = cfg }
}

// NewOpenAIProvider creates a provider for an OpenAI-compatible API.
func NewOpenAIProvider(apiKey, baseURL, model string, logger *logrus.Logger, opts ...OpenAIOption) *OpenAIProvider {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if model == "" {
		model = defaultModel
	}
	if logger == nil {
		logger = logrus.New()
	}

	p := &OpenAIProvider{
		apiKey:         apiKey,
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		model:          model,
		embeddingModel: defaultEmbeddingModel,
		httpClient:     &http.Client{Timeout: 120 * time.Second},
		retryConfig:    DefaultRetryConfig(),
		logger:         logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
}

type openAIChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

type openAIStreamResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Delta        openAIMessage `json:"delta"`
		FinishReason *string       `json:"finish_reason"`
	} `json:"choices"`
}

type openAIEmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Complete sends a blocking completion request.
func (p *OpenAIProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	resp, err := p.postJSON(ctx, "/chat/completions", p.convertRequest(req, false))
	if err != nil {
		return nil, fmt.Errorf("completion call failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("completion API error: %d - %s", resp.StatusCode, string(body))
	}

	var apiResp openAIChatResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("completion API returned no choices")
	}

	return &CompletionResponse{
		Content:      apiResp.Choices[0].Message.Content,
		Model:        apiResp.Model,
		TokensUsed:   apiResp.Usage.TotalTokens,
		FinishReason: apiResp.Choices[0].FinishReason,
		CreatedAt:    time.Now(),
	}, nil
}

// CompleteStream sends a streaming completion request and relays SSE
// chunks on the returned channel.
func (p *OpenAIProvider) CompleteStream(ctx context.Context, req *CompletionRequest) (<-chan *StreamEvent, error) {
	resp, err := p.postJSON(ctx, "/chat/completions", p.convertRequest(req, true))
	if err != nil {
		return nil, fmt.Errorf("streaming call failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("completion API error: %d - %s", resp.StatusCode, string(body))
	}

	ch := make(chan *StreamEvent)
	go func() {
		defer func() { _ = resp.Body.Close() }()
		defer close(ch)

		reader := bufio.NewReader(resp.Body)
		var fullContent strings.Builder
		model := p.model

		for {
			line, err := reader.ReadBytes('\n')
			if err != nil {
				if err == io.EOF {
					ch <- &StreamEvent{Done: true, Content: fullContent.String(), Model: model}
					return
				}
				// A cancelled request surfaces as a read error.
				ch <- &StreamEvent{Done: true, Content: fullContent.String(), Model: model, Err: err}
				return
			}

			line = bytes.TrimSpace(line)
			if !bytes.HasPrefix(line, []byte("data: ")) {
				continue
			}
			line = bytes.TrimPrefix(line, []byte("data: "))

			if string(line) == "[DONE]" {
				ch <- &StreamEvent{Done: true, Content: fullContent.String(), Model: model}
				return
			}

			var streamResp openAIStreamResponse
			if err := json.Unmarshal(line, &streamResp); err != nil {
				continue
			}
			if streamResp.Model != "" {
				model = streamResp.Model
			}
			if len(streamResp.Choices) > 0 {
				delta := streamResp.Choices[0].Delta.Content
				if delta != "" {
					fullContent.WriteString(delta)
					select {
					case ch <- &StreamEvent{Delta: delta, Model: model}:
					case <-ctx.Done():
						ch <- &StreamEvent{Done: true, Content: fullContent.String(), Model: model, Err: ctx.Err()}
						return
					}
				}
			}
		}
	}()

	return ch, nil
}

// Embed returns the embedding for one text.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns embeddings for several texts in one call.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := p.postJSON(ctx, "/embeddings", &openAIEmbeddingRequest{Model: p.embeddingModel, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("embedding call failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding API error: %d - %s", resp.StatusCode, string(body))
	}

	var apiResp openAIEmbeddingResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(apiResp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding API returned %d vectors for %d inputs", len(apiResp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range apiResp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding API returned out-of-range index %d", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// SummarizeStructured asks for a schema-constrained summary of the
// transcript. Only a failed completion call is a hard error; schema
// violations are reported in the outcome.
func (p *OpenAIProvider) SummarizeStructured(ctx context.Context, transcript string) (*SummaryOutcome, error) {
	resp, err := p.Complete(ctx, &CompletionRequest{
		Messages: []ChatMessage{
			{Role: "system", Content: summarizePrompt},
			{Role: "user", Content: transcript},
		},
		Options: CompletionOptions{Temperature: 0.2, MaxTokens: 1024},
	})
	if err != nil {
		return nil, err
	}

	outcome := &SummaryOutcome{Raw: resp.Content}
	structured, parseErr := ParseStructuredSummary(resp.Content)
	if parseErr != nil {
		p.logger.WithError(parseErr).Warn("Structured summary failed schema validation")
		outcome.ParseErr = parseErr
		return outcome, nil
	}
	outcome.Structured = structured
	return outcome, nil
}

func (p *OpenAIProvider) convertRequest(req *CompletionRequest, stream bool) *openAIChatRequest {
	messages := make([]openAIMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openAIMessage{Role: string(m.Role), Content: m.Content})
	}
	return &openAIChatRequest{
		Model:       p.model,
		Messages:    messages,
		Temperature: req.Options.Temperature,
		MaxTokens:   req.Options.MaxTokens,
		Stream:      stream,
	}
}

func (p *OpenAIProvider) postJSON(ctx context.Context, path string, payload interface{}) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	return ExecuteWithRetry(ctx, p.retryConfig, func() (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if p.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
		}
		return p.httpClient.Do(httpReq)
	})
}
