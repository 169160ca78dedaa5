// -----------------------------------------------------------------------
// Embedding Client - Batched text embedding over an OpenAI-style API
// Retries rate-limited batches with exponential backoff
// -----------------------------------------------------------------------

package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lexa/internal/common"
	"github.com/ternarybob/lexa/internal/interfaces"
	"golang.org/x/time/rate"
)

// ErrRateLimited marks a 429 from the embedding provider. Batches
// hitting it are retried with backoff; any other error propagates.
var ErrRateLimited = errors.New("embedding provider rate limited")

// Client calls an OpenAI-style /v1/embeddings endpoint in fixed-size
// batches, pacing requests under the provider quota.
type Client struct {
	config     *common.EmbeddingConfig
	logger     arbor.ILogger
	httpClient *http.Client
	limiter    *rate.Limiter
	backoff    time.Duration
}

// NewClient creates a new embedding client
func NewClient(config *common.EmbeddingConfig, logger arbor.ILogger) *Client {
	timeout := common.MustDuration(config.Timeout, 30*time.Second)
	backoff := common.MustDuration(config.BackoffInterval, time.Second)

	var limiter *rate.Limiter
	if config.RequestsPerMin > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerMin/60.0), 1)
	}

	return &Client{
		config:     config,
		logger:     logger,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		backoff:    backoff,
	}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// EmbedTexts embeds all texts, preserving 1:1 index correspondence with
// the input regardless of batching boundaries.
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	batchSize := c.config.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}

	result := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		vectors, err := c.embedBatchWithRetry(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("batch starting at %d failed: %w", start, err)
		}
		copy(result[start:end], vectors)
	}

	return result, nil
}

// EmbedQuery embeds a single query string.
func (c *Client) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := c.embedBatchWithRetry(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// embedBatchWithRetry retries the same batch on rate limiting with
// exponential backoff up to the configured ceiling. Other errors are
// returned immediately.
func (c *Client) embedBatchWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	backoff := c.backoff
	for attempt := 0; ; attempt++ {
		vectors, err := c.embedBatch(ctx, batch)
		if err == nil {
			return vectors, nil
		}
		if !errors.Is(err, ErrRateLimited) || attempt >= c.config.MaxRetries {
			return nil, err
		}

		c.logger.Warn().
			Int("attempt", attempt+1).
			Int("batch_size", len(batch)).
			Dur("backoff", backoff).
			Msg("Embedding batch rate limited, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func (c *Client) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	body, err := json.Marshal(embeddingRequest{
		Model: c.config.Model,
		Input: batch,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, resp.Body)
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("embedding provider returned %d: %s", resp.StatusCode, string(payload))
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}
	if len(parsed.Data) != len(batch) {
		return nil, fmt.Errorf("embedding provider returned %d vectors for %d inputs", len(parsed.Data), len(batch))
	}

	// Providers may reorder data entries; the index field is authoritative.
	vectors := make([][]float32, len(batch))
	for _, item := range parsed.Data {
		if item.Index < 0 || item.Index >= len(batch) {
			return nil, fmt.Errorf("embedding provider returned out-of-range index %d", item.Index)
		}
		vectors[item.Index] = item.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("embedding provider omitted vector for index %d", i)
		}
	}

	return vectors, nil
}

var _ interfaces.EmbeddingClient = (*Client)(nil)
