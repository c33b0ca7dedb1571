package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a point id does not exist.
var ErrNotFound = errors.New("point not found")

// Client talks to Qdrant over its HTTP API.
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a Qdrant client.
func NewClient(config *Config, logger *logrus.Logger) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}, nil
}

// Collection returns the configured collection name.
func (c *Client) Collection() string {
	return c.config.Collection
}

// HealthCheck verifies the instance responds. The root endpoint is
// used because newer Qdrant versions dropped /health.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.config.APIKey != "" {
		req.Header.Set("api-key", c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// EnsureCollection creates the configured collection when it does not
// exist yet.
func (c *Client) EnsureCollection(ctx context.Context) error {
	path := fmt.Sprintf("/collections/%s", c.config.Collection)
	if _, err := c.doRequest(ctx, http.MethodGet, path, nil); err == nil {
		return nil
	}

	reqBody := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     c.config.VectorSize,
			"distance": c.config.Distance,
		},
	}
	if _, err := c.doRequest(ctx, http.MethodPut, path, reqBody); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	c.logger.WithField("collection", c.config.Collection).Info("Collection created")
	return nil
}

// Point is a vector with its payload.
type Point struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// ScoredPoint is a search hit.
type ScoredPoint struct {
	ID      string                 `json:"id"`
	Score   float64                `json:"score"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// RetrievedPoint is a point fetched by id or scroll, without a score.
type RetrievedPoint struct {
	ID      string                 `json:"id"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// SearchParams narrow a similarity search.
type SearchParams struct {
	Limit          int
	ScoreThreshold float64
	Filter         map[string]interface{}
}

// UpsertPoint inserts or overwrites one point by id.
func (c *Client) UpsertPoint(ctx context.Context, point Point) error {
	reqBody := map[string]interface{}{"points": []Point{point}}
	path := fmt.Sprintf("/collections/%s/points", c.config.Collection)
	if _, err := c.doRequest(ctx, http.MethodPut, path, reqBody); err != nil {
		return fmt.Errorf("failed to upsert point: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"collection": c.config.Collection,
		"id":         point.ID,
	}).Debug("Point upserted")
	return nil
}

// DeletePoint removes one point by id.
func (c *Client) DeletePoint(ctx context.Context, id string) error {
	reqBody := map[string]interface{}{"points": []string{id}}
	path := fmt.Sprintf("/collections/%s/points/delete", c.config.Collection)
	if _, err := c.doRequest(ctx, http.MethodPost, path, reqBody); err != nil {
		return fmt.Errorf("failed to delete point: %w", err)
	}
	return nil
}

// GetPoint retrieves one point with its payload.
func (c *Client) GetPoint(ctx context.Context, id string) (*RetrievedPoint, error) {
	path := fmt.Sprintf("/collections/%s/points/%s", c.config.Collection, id)
	respBody, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		var ae *apiError
		if errors.As(err, &ae) && ae.status == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get point: %w", err)
	}

	var response struct {
		Result RetrievedPoint `json:"result"`
	}
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &response.Result, nil
}

// ScrollPoints pages through points matching a filter. The search API
// cannot serve listings since it requires a query vector; scroll is
// the listing endpoint. The returned offset is nil once the listing is
// exhausted.
func (c *Client) ScrollPoints(ctx context.Context, filter map[string]interface{}, limit int, offset interface{}) ([]RetrievedPoint, interface{}, error) {
	reqBody := map[string]interface{}{
		"limit":        limit,
		"with_payload": true,
	}
	if filter != nil {
		reqBody["filter"] = filter
	}
	if offset != nil {
		reqBody["offset"] = offset
	}

	path := fmt.Sprintf("/collections/%s/points/scroll", c.config.Collection)
	respBody, err := c.doRequest(ctx, http.MethodPost, path, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to scroll points: %w", err)
	}

	var response struct {
		Result struct {
			Points         []RetrievedPoint `json:"points"`
			NextPageOffset interface{}      `json:"next_page_offset"`
		} `json:"result"`
	}
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return response.Result.Points, response.Result.NextPageOffset, nil
}

// Search runs a similarity search against the collection.
func (c *Client) Search(ctx context.Context, vector []float32, params SearchParams) ([]ScoredPoint, error) {
	reqBody := map[string]interface{}{
		"vector":       vector,
		"limit":        params.Limit,
		"with_payload": true,
	}
	if params.ScoreThreshold > 0 {
		reqBody["score_threshold"] = params.ScoreThreshold
	}
	if params.Filter != nil {
		reqBody["filter"] = params.Filter
	}

	path := fmt.Sprintf("/collections/%s/points/search", c.config.Collection)
	respBody, err := c.doRequest(ctx, http.MethodPost, path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var response struct {
		Result []ScoredPoint `json:"result"`
	}
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return response.Result, nil
}

// CountPoints counts points matching an optional filter.
func (c *Client) CountPoints(ctx context.Context, filter map[string]interface{}) (int64, error) {
	reqBody := map[string]interface{}{"exact": true}
	if filter != nil {
		reqBody["filter"] = filter
	}

	path := fmt.Sprintf("/collections/%s/points/count", c.config.Collection)
	respBody, err := c.doRequest(ctx, http.MethodPost, path, reqBody)
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}

	var response struct {
		Result struct {
			Count int64 `json:"count"`
		} `json:"result"`
	}
	if err := json.Unmarshal(respBody, &response); err != nil {
		return 0, fmt.Errorf("failed to parse response: %w", err)
	}
	return response.Result.Count, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	url := c.config.BaseURL() + path

	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("api-key", c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, &apiError{status: resp.StatusCode, body: string(respBody)}
	}
	return respBody, nil
}

// apiError preserves the HTTP status of a failed call so callers can
// tell a missing point from an unreachable instance.
type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.status, e.body)
}
