package retriever

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lexa/internal/interfaces"
)

type fakeEmbedder struct {
	lastQuery string
	vector    []float32
	err       error
}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	f.lastQuery = text
	return f.vector, f.err
}

type fakeIndex struct {
	lastVector []float32
	lastLimit  int
	lastFilter *interfaces.SearchFilter
	hits       []interfaces.SearchHit
	err        error
}

func (f *fakeIndex) EnsureCollection(ctx context.Context) error { return nil }
func (f *fakeIndex) Upsert(ctx context.Context, points []interfaces.VectorPoint) error {
	return nil
}
func (f *fakeIndex) DeleteByDocument(ctx context.Context, documentID string) error { return nil }

func (f *fakeIndex) Search(ctx context.Context, vector []float32, limit int, filter *interfaces.SearchFilter) ([]interfaces.SearchHit, error) {
	f.lastVector = vector
	f.lastLimit = limit
	f.lastFilter = filter
	return f.hits, f.err
}

func TestRetrieve_MapsPayloadToChunks(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{0.1, 0.2}}
	index := &fakeIndex{
		hits: []interfaces.SearchHit{
			{
				ID:    "point-uuid",
				Score: 0.88,
				Payload: map[string]interface{}{
					"chunk_id":    "chk_1",
					"document_id": "doc_1",
					"content":     "Section 8-1 deductions text",
					"ordinal":     float64(3),
					"tax_area":    "deductions",
					"doc_type":    "ruling",
				},
			},
		},
	}

	svc := NewService(embedder, index, arbor.NewLogger())
	filter := &interfaces.SearchFilter{TaxArea: "deductions"}

	chunks, err := svc.Retrieve(context.Background(), "home office deductions", 10, filter)
	require.NoError(t, err)

	assert.Equal(t, "home office deductions", embedder.lastQuery)
	assert.Equal(t, []float32{0.1, 0.2}, index.lastVector)
	assert.Equal(t, 10, index.lastLimit)
	assert.Equal(t, filter, index.lastFilter)

	require.Len(t, chunks, 1)
	assert.Equal(t, "chk_1", chunks[0].ChunkID)
	assert.Equal(t, "doc_1", chunks[0].DocumentID)
	assert.Equal(t, "Section 8-1 deductions text", chunks[0].Content)
	assert.Equal(t, 3, chunks[0].Ordinal)
	assert.Equal(t, float32(0.88), chunks[0].Score)
	assert.Equal(t, "deductions", chunks[0].Metadata["tax_area"])
	assert.Equal(t, "ruling", chunks[0].Metadata["doc_type"])
	assert.NotContains(t, chunks[0].Metadata, "content")
}

func TestRetrieve_FallsBackToHitID(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{0.5}}
	index := &fakeIndex{
		hits: []interfaces.SearchHit{
			{ID: "raw-point-id", Score: 0.5, Payload: map[string]interface{}{"content": "text"}},
		},
	}

	svc := NewService(embedder, index, arbor.NewLogger())
	chunks, err := svc.Retrieve(context.Background(), "q", 5, nil)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "raw-point-id", chunks[0].ChunkID)
}

func TestRetrieve_EmbedErrorPropagates(t *testing.T) {
	embedder := &fakeEmbedder{err: assert.AnError}
	svc := NewService(embedder, &fakeIndex{}, arbor.NewLogger())

	_, err := svc.Retrieve(context.Background(), "q", 5, nil)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestRetrieve_SearchErrorPropagates(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{0.1}}
	index := &fakeIndex{err: assert.AnError}
	svc := NewService(embedder, index, arbor.NewLogger())

	_, err := svc.Retrieve(context.Background(), "q", 5, nil)
	assert.ErrorIs(t, err, assert.AnError)
}
