package embeddings

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
)

type embedServerCall struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// newEmbedServer returns a server that answers each input with a vector
// whose first element encodes the input's global arrival order, after
// optionally failing the first rateLimitCount requests with 429.
func newEmbedServer(t *testing.T, rateLimitCount int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	var limited atomic.Int32

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		calls.Add(1)

		if limited.Add(1) <= rateLimitCount {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		var req embedServerCall
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type dataItem struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		resp := struct {
			Data []dataItem `json:"data"`
		}{}
		// Return entries in reverse to prove index mapping is honored.
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, dataItem{
				Index:     i,
				Embedding: []float32{float32(len(req.Input[i])), 0.5},
			})
		}
		json.NewEncoder(w).Encode(resp)
	})

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server, &calls
}

func newTestClient(baseURL string, batchSize, maxRetries int) *Client {
	return NewClient(&common.EmbeddingConfig{
		BaseURL:         baseURL,
		Model:           "test-embed",
		Dimension:       2,
		BatchSize:       batchSize,
		MaxRetries:      maxRetries,
		Timeout:         "5s",
		BackoffInterval: "1ms",
	}, arbor.NewLogger())
}

func TestEmbedTexts_PreservesOrderAcrossBatches(t *testing.T) {
	server, calls := newEmbedServer(t, 0)
	client := newTestClient(server.URL, 2, 0)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vectors, err := client.EmbedTexts(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))

	// Three batches: [a bb] [ccc dddd] [eeeee].
	assert.Equal(t, int32(3), calls.Load())
	for i, text := range texts {
		assert.Equal(t, float32(len(text)), vectors[i][0], "vector %d misaligned", i)
	}
}

func TestEmbedTexts_RetriesRateLimitedBatch(t *testing.T) {
	server, calls := newEmbedServer(t, 2)
	client := newTestClient(server.URL, 10, 3)

	vectors, err := client.EmbedTexts(context.Background(), []string{"hello"})
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestEmbedTexts_RateLimitExhaustsRetries(t *testing.T) {
	server, calls := newEmbedServer(t, 100)
	client := newTestClient(server.URL, 10, 2)

	_, err := client.EmbedTexts(context.Background(), []string{"hello"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)
	// Initial attempt plus two retries.
	assert.Equal(t, int32(3), calls.Load())
}

func TestEmbedTexts_ServerErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	client := newTestClient(server.URL, 10, 5)
	_, err := client.EmbedTexts(context.Background(), []string{"hello"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEmbedTexts_Empty(t *testing.T) {
	client := newTestClient("http://unused.invalid", 10, 0)
	vectors, err := client.EmbedTexts(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestEmbedQuery(t *testing.T) {
	server, _ := newEmbedServer(t, 0)
	client := newTestClient(server.URL, 10, 0)

	vector, err := client.EmbedQuery(context.Background(), "what is deductible")
	require.NoError(t, err)
	require.Len(t, vector, 2)
	assert.Equal(t, float32(len("what is deductible")), vector[0])
}
