// -----------------------------------------------------------------------
// Rerank Client - Cross-encoder reranking of retrieved chunks
// Skips the network round-trip when candidates already fit the budget
// -----------------------------------------------------------------------

package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lexa/internal/common"
	"github.com/ternarybob/lexa/internal/interfaces"
	"github.com/ternarybob/lexa/internal/models"
)

// Client calls a Cohere-style /rerank endpoint.
type Client struct {
	config     *common.RerankConfig
	logger     arbor.ILogger
	httpClient *http.Client
}

// NewClient creates a new rerank client
func NewClient(config *common.RerankConfig, logger arbor.ILogger) *Client {
	timeout := common.MustDuration(config.Timeout, 30*time.Second)
	return &Client{
		config:     config,
		logger:     logger,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float32 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank reorders chunks by cross-encoder relevance and truncates to
// topN. When the candidate set already fits the budget the original
// order is kept, similarity scores stand in for rerank scores and no
// request is made.
func (c *Client) Rerank(ctx context.Context, query string, chunks []models.RetrievedChunk, topN int) ([]models.RankedChunk, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	if len(chunks) <= topN {
		ranked := make([]models.RankedChunk, len(chunks))
		for i, chunk := range chunks {
			ranked[i] = models.RankedChunk{RetrievedChunk: chunk, RerankScore: chunk.Score}
		}
		c.logger.Debug().
			Int("candidates", len(chunks)).
			Int("top_n", topN).
			Msg("Rerank short-circuit, candidates within budget")
		return ranked, nil
	}

	documents := make([]string, len(chunks))
	for i, chunk := range chunks {
		documents[i] = chunk.Content
	}

	body, err := json.Marshal(rerankRequest{
		Model:     c.config.Model,
		Query:     query,
		Documents: documents,
		TopN:      topN,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("rerank provider returned %d: %s", resp.StatusCode, string(payload))
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}

	ranked := make([]models.RankedChunk, 0, len(parsed.Results))
	for _, result := range parsed.Results {
		if result.Index < 0 || result.Index >= len(chunks) {
			return nil, fmt.Errorf("rerank provider returned out-of-range index %d", result.Index)
		}
		ranked = append(ranked, models.RankedChunk{
			RetrievedChunk: chunks[result.Index],
			RerankScore:    result.RelevanceScore,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RerankScore > ranked[j].RerankScore
	})
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}

	c.logger.Debug().
		Int("candidates", len(chunks)).
		Int("returned", len(ranked)).
		Msg("Reranked chunks")
	return ranked, nil
}

var _ interfaces.Reranker = (*Client)(nil)
