// -----------------------------------------------------------------------
// Vector Index Client - Qdrant REST client for chunk vectors
// Owns collection lifecycle, upsert, filtered search and cleanup
// -----------------------------------------------------------------------

package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lexa/internal/common"
	"github.com/ternarybob/lexa/internal/interfaces"
)

const upsertBatchSize = 64

// Client talks to a Qdrant instance over its REST API.
type Client struct {
	config     *common.VectorConfig
	dimension  int
	logger     arbor.ILogger
	httpClient *http.Client

	ensureMu sync.Mutex
	ensured  bool
}

// NewClient creates a new vector index client. The dimension must match
// the embedding model output size.
func NewClient(config *common.VectorConfig, dimension int, logger arbor.ILogger) *Client {
	timeout := common.MustDuration(config.Timeout, 30*time.Second)
	return &Client{
		config:     config,
		dimension:  dimension,
		logger:     logger,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// PointID derives a stable UUID for a document chunk so repeated
// ingestion of the same ordinal overwrites rather than duplicates.
func PointID(documentID string, ordinal int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s:%d", documentID, ordinal))).String()
}

// EnsureCollection creates the collection if it does not exist. Safe to
// call repeatedly; a concurrent-create conflict is treated as success.
// Only success is cached, so a transient failure at startup is retried
// on the next call.
func (c *Client) EnsureCollection(ctx context.Context) error {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()

	if c.ensured {
		return nil
	}
	if err := c.createCollection(ctx); err != nil {
		return err
	}
	c.ensured = true
	return nil
}

func (c *Client) createCollection(ctx context.Context) error {
	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     c.dimension,
			"distance": "Cosine",
		},
	}

	status, payload, err := c.do(ctx, http.MethodPut,
		fmt.Sprintf("/collections/%s", c.config.Collection), body)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	switch status {
	case http.StatusOK:
		c.logger.Debug().Str("collection", c.config.Collection).Msg("Vector collection ready")
		return nil
	case http.StatusConflict:
		// Already exists, possibly created by a concurrent instance.
		return nil
	default:
		return fmt.Errorf("collection create returned %d: %s", status, payload)
	}
}

// Upsert writes points in batches with wait=true so a successful return
// means the vectors are searchable.
func (c *Client) Upsert(ctx context.Context, points []interfaces.VectorPoint) error {
	if err := c.EnsureCollection(ctx); err != nil {
		return err
	}

	for start := 0; start < len(points); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(points) {
			end = len(points)
		}

		batch := make([]map[string]interface{}, 0, end-start)
		for _, p := range points[start:end] {
			batch = append(batch, map[string]interface{}{
				"id":      p.ID,
				"vector":  p.Vector,
				"payload": p.Payload,
			})
		}

		status, payload, err := c.do(ctx, http.MethodPut,
			fmt.Sprintf("/collections/%s/points?wait=true", c.config.Collection),
			map[string]interface{}{"points": batch})
		if err != nil {
			return fmt.Errorf("point upsert failed: %w", err)
		}
		if status != http.StatusOK {
			return fmt.Errorf("point upsert returned %d: %s", status, payload)
		}
	}

	c.logger.Debug().
		Str("collection", c.config.Collection).
		Int("points", len(points)).
		Msg("Upserted vectors")
	return nil
}

type searchResponse struct {
	Result []struct {
		ID      interface{}            `json:"id"`
		Score   float32                `json:"score"`
		Payload map[string]interface{} `json:"payload"`
	} `json:"result"`
}

// Search performs a similarity search, optionally restricted by a
// must-match filter on payload fields.
func (c *Client) Search(ctx context.Context, vector []float32, limit int, filter *interfaces.SearchFilter) ([]interfaces.SearchHit, error) {
	body := map[string]interface{}{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if qf := buildFilter(filter); qf != nil {
		body["filter"] = qf
	}

	status, payload, err := c.do(ctx, http.MethodPost,
		fmt.Sprintf("/collections/%s/points/search", c.config.Collection), body)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("vector search returned %d: %s", status, payload)
	}

	var parsed searchResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	hits := make([]interfaces.SearchHit, 0, len(parsed.Result))
	for _, r := range parsed.Result {
		hits = append(hits, interfaces.SearchHit{
			ID:      fmt.Sprintf("%v", r.ID),
			Score:   r.Score,
			Payload: r.Payload,
		})
	}
	return hits, nil
}

// DeleteByDocument removes every point whose payload references the
// document. Used when purging before re-ingestion or on deletion.
func (c *Client) DeleteByDocument(ctx context.Context, documentID string) error {
	body := map[string]interface{}{
		"filter": map[string]interface{}{
			"must": []map[string]interface{}{
				{"key": "document_id", "match": map[string]interface{}{"value": documentID}},
			},
		},
	}

	status, payload, err := c.do(ctx, http.MethodPost,
		fmt.Sprintf("/collections/%s/points/delete?wait=true", c.config.Collection), body)
	if err != nil {
		return fmt.Errorf("point delete failed: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("point delete returned %d: %s", status, payload)
	}

	c.logger.Debug().Str("document_id", documentID).Msg("Deleted document vectors")
	return nil
}

// buildFilter translates the uniform search filter into Qdrant's
// must-match clause list. Returns nil when no fields are set.
func buildFilter(filter *interfaces.SearchFilter) map[string]interface{} {
	if filter.IsZero() {
		return nil
	}

	fields := map[string]string{
		"source":      filter.Source,
		"document_id": filter.DocumentID,
		"doc_type":    filter.DocType,
		"audience":    filter.Audience,
		"tax_area":    filter.TaxArea,
	}

	var must []map[string]interface{}
	for key, value := range fields {
		if value == "" {
			continue
		}
		must = append(must, map[string]interface{}{
			"key":   key,
			"match": map[string]interface{}{"value": value},
		})
	}
	return map[string]interface{}{"must": must}
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (int, []byte, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("api-key", c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, payload, nil
}

var _ interfaces.VectorIndex = (*Client)(nil)
