package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lexa/internal/common"
	"github.com/ternarybob/lexa/internal/models"
)

func retrieved(id string, score float32) models.RetrievedChunk {
	return models.RetrievedChunk{
		ChunkID:    id,
		DocumentID: "doc_1",
		Content:    "content of " + id,
		Score:      score,
	}
}

func TestRerank_ShortCircuitSkipsHTTP(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	client := NewClient(&common.RerankConfig{BaseURL: server.URL, Timeout: "5s"}, arbor.NewLogger())

	chunks := []models.RetrievedChunk{
		retrieved("chk_a", 0.9),
		retrieved("chk_b", 0.7),
	}

	ranked, err := client.Rerank(context.Background(), "query", chunks, 5)
	require.NoError(t, err)

	assert.Equal(t, int32(0), calls.Load(), "short-circuit must not call the provider")
	require.Len(t, ranked, 2)
	// Original order preserved, similarity scores reused.
	assert.Equal(t, "chk_a", ranked[0].ChunkID)
	assert.Equal(t, float32(0.9), ranked[0].RerankScore)
	assert.Equal(t, "chk_b", ranked[1].ChunkID)
	assert.Equal(t, float32(0.7), ranked[1].RerankScore)
}

func TestRerank_CallsProviderAndSortsByRelevance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rerank", r.URL.Path)

		var req struct {
			Query     string   `json:"query"`
			Documents []string `json:"documents"`
			TopN      int      `json:"top_n"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "deductions query", req.Query)
		assert.Len(t, req.Documents, 3)
		assert.Equal(t, 2, req.TopN)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{
				{"index": 2, "relevance_score": 0.95},
				{"index": 0, "relevance_score": 0.40},
			},
		})
	}))
	t.Cleanup(server.Close)

	client := NewClient(&common.RerankConfig{BaseURL: server.URL, Model: "rerank-v3", Timeout: "5s"}, arbor.NewLogger())

	chunks := []models.RetrievedChunk{
		retrieved("chk_a", 0.9),
		retrieved("chk_b", 0.8),
		retrieved("chk_c", 0.7),
	}

	ranked, err := client.Rerank(context.Background(), "deductions query", chunks, 2)
	require.NoError(t, err)

	require.Len(t, ranked, 2)
	assert.Equal(t, "chk_c", ranked[0].ChunkID)
	assert.Equal(t, float32(0.95), ranked[0].RerankScore)
	assert.Equal(t, "chk_a", ranked[1].ChunkID)
	assert.Equal(t, float32(0.40), ranked[1].RerankScore)
}

func TestRerank_Empty(t *testing.T) {
	client := NewClient(&common.RerankConfig{BaseURL: "http://unused.invalid", Timeout: "5s"}, arbor.NewLogger())
	ranked, err := client.Rerank(context.Background(), "query", nil, 5)
	require.NoError(t, err)
	assert.Nil(t, ranked)
}

func TestRerank_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad model", http.StatusBadRequest)
	}))
	t.Cleanup(server.Close)

	client := NewClient(&common.RerankConfig{BaseURL: server.URL, Timeout: "5s"}, arbor.NewLogger())

	chunks := []models.RetrievedChunk{
		retrieved("chk_a", 0.9),
		retrieved("chk_b", 0.8),
	}
	_, err := client.Rerank(context.Background(), "query", chunks, 1)
	assert.Error(t, err)
}
