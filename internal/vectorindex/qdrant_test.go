package vectorindex

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
	"github.com/ternarybob/lexa/internal/interfaces"
)

func newTestIndexClient(baseURL string) *Client {
	return NewClient(&common.VectorConfig{
		BaseURL:    baseURL,
		Collection: "lexa_chunks",
		Timeout:    "5s",
	}, 4, arbor.NewLogger())
}

func TestPointID_Stable(t *testing.T) {
	a := PointID("doc_1", 0)
	b := PointID("doc_1", 0)
	c := PointID("doc_1", 1)
	d := PointID("doc_2", 0)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
	assert.Len(t, a, 36)
}

func TestEnsureCollection_IdempotentAndConflictTolerant(t *testing.T) {
	var creates atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/collections/lexa_chunks", r.URL.Path)
		creates.Add(1)
		w.WriteHeader(http.StatusConflict)
	}))
	t.Cleanup(server.Close)

	client := newTestIndexClient(server.URL)
	require.NoError(t, client.EnsureCollection(context.Background()))
	require.NoError(t, client.EnsureCollection(context.Background()))

	// Collection creation only fires once per client.
	assert.Equal(t, int32(1), creates.Load())
}

func TestUpsert_SendsPointsWithPayload(t *testing.T) {
	var upserted struct {
		Points []struct {
			ID      string                 `json:"id"`
			Vector  []float32              `json:"vector"`
			Payload map[string]interface{} `json:"payload"`
		} `json:"points"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/lexa_chunks":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/lexa_chunks/points":
			assert.Equal(t, "true", r.URL.Query().Get("wait"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&upserted))
			w.WriteHeader(http.StatusOK)
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	t.Cleanup(server.Close)

	client := newTestIndexClient(server.URL)
	points := []interfaces.VectorPoint{
		{
			ID:     PointID("doc_1", 0),
			Vector: []float32{0.1, 0.2, 0.3, 0.4},
			Payload: map[string]interface{}{
				"content":     "Section 8-1 general deductions",
				"document_id": "doc_1",
				"ordinal":     0,
				"tax_area":    "deductions",
			},
		},
	}

	require.NoError(t, client.Upsert(context.Background(), points))
	require.Len(t, upserted.Points, 1)
	assert.Equal(t, points[0].ID, upserted.Points[0].ID)
	assert.Equal(t, "doc_1", upserted.Points[0].Payload["document_id"])
	assert.Equal(t, "Section 8-1 general deductions", upserted.Points[0].Payload["content"])
}

func TestSearch_MapsHitsAndAppliesFilter(t *testing.T) {
	var searchBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/collections/lexa_chunks/points/search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&searchBody))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"result": []map[string]interface{}{
				{
					"id":    "11111111-1111-1111-1111-111111111111",
					"score": 0.91,
					"payload": map[string]interface{}{
						"content":     "chunk text",
						"document_id": "doc_1",
						"ordinal":     float64(2),
					},
				},
			},
		})
	}))
	t.Cleanup(server.Close)

	client := newTestIndexClient(server.URL)
	hits, err := client.Search(context.Background(), []float32{0.1, 0.2, 0.3, 0.4}, 5,
		&interfaces.SearchFilter{TaxArea: "gst"})
	require.NoError(t, err)

	require.Len(t, hits, 1)
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", hits[0].ID)
	assert.InDelta(t, 0.91, float64(hits[0].Score), 0.0001)
	assert.Equal(t, "chunk text", hits[0].Payload["content"])

	assert.Equal(t, true, searchBody["with_payload"])
	assert.Equal(t, float64(5), searchBody["limit"])

	filter, ok := searchBody["filter"].(map[string]interface{})
	require.True(t, ok)
	must, ok := filter["must"].([]interface{})
	require.True(t, ok)
	require.Len(t, must, 1)
	clause := must[0].(map[string]interface{})
	assert.Equal(t, "tax_area", clause["key"])
}

func TestSearch_NoFilterOmitsClause(t *testing.T) {
	var searchBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&searchBody))
		json.NewEncoder(w).Encode(map[string]interface{}{"result": []interface{}{}})
	}))
	t.Cleanup(server.Close)

	client := newTestIndexClient(server.URL)
	_, err := client.Search(context.Background(), []float32{0.1}, 3, nil)
	require.NoError(t, err)

	_, hasFilter := searchBody["filter"]
	assert.False(t, hasFilter)
}

func TestDeleteByDocument(t *testing.T) {
	var deleteBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections/lexa_chunks/points/delete", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&deleteBody))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	client := newTestIndexClient(server.URL)
	require.NoError(t, client.DeleteByDocument(context.Background(), "doc_9"))

	filter := deleteBody["filter"].(map[string]interface{})
	must := filter["must"].([]interface{})
	clause := must[0].(map[string]interface{})
	assert.Equal(t, "document_id", clause["key"])
	match := clause["match"].(map[string]interface{})
	assert.Equal(t, "doc_9", match["value"])
}
