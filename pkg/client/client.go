package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/campusrag/campusrag/rag"
	"github.com/campusrag/campusrag/rag/types"
)

// ErrTimeout is returned when the server gave up on a query.
var ErrTimeout = errors.New("query timed out")

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k,omitempty"`
}

// Health is the body of GET /health.
type Health struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// Client is a client for the RAG API
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new RAG API client
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{},
	}
}

// Query asks a question. A topK <= 0 lets the server pick.
func (c *Client) Query(ctx context.Context, question string, topK int) (*types.PipelineResult, error) {
	payload, err := json.Marshal(QueryRequest{Question: question, TopK: topK})
	if err != nil {
		return nil, err
	}

	var result types.PipelineResult
	if err := c.do(ctx, http.MethodPost, "/query", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Stats returns the collection, configuration and cache statistics.
func (c *Client) Stats(ctx context.Context) (*rag.AssistantStats, error) {
	var stats rag.AssistantStats
	if err := c.do(ctx, http.MethodGet, "/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) Health(ctx context.Context) (*Health, error) {
	var health Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGatewayTimeout:
		return ErrTimeout
	case resp.StatusCode != http.StatusOK:
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, body.Error)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
