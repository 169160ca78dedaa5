package ingest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lexa/internal/chunker"
	"github.com/ternarybob/lexa/internal/common"
	"github.com/ternarybob/lexa/internal/interfaces"
	"github.com/ternarybob/lexa/internal/models"
	"github.com/ternarybob/lexa/internal/parser"
)

type fakeDocStorage struct {
	docs     map[string]*models.Document
	statuses map[string][]models.DocumentStatus
}

func newFakeDocStorage() *fakeDocStorage {
	return &fakeDocStorage{
		docs:     make(map[string]*models.Document),
		statuses: make(map[string][]models.DocumentStatus),
	}
}

func (f *fakeDocStorage) SaveDocument(doc *models.Document) error {
	copied := *doc
	f.docs[doc.ID] = &copied
	f.statuses[doc.ID] = append(f.statuses[doc.ID], doc.Status)
	return nil
}

func (f *fakeDocStorage) GetDocument(id string) (*models.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	copied := *doc
	return &copied, nil
}

func (f *fakeDocStorage) ListByStatus(status models.DocumentStatus, limit int) ([]*models.Document, error) {
	return nil, nil
}

func (f *fakeDocStorage) ListStale(policy models.RefreshPolicy, cutoff time.Time, limit int) ([]*models.Document, error) {
	return nil, nil
}

func (f *fakeDocStorage) MarkSuperseded(id, supersededBy, note string) error { return nil }

func (f *fakeDocStorage) DeleteDocument(id string) error {
	delete(f.docs, id)
	return nil
}

type fakeChunkStorage struct {
	saved   map[string][]*models.Chunk
	purges  int
	saveErr error
}

func newFakeChunkStorage() *fakeChunkStorage {
	return &fakeChunkStorage{saved: make(map[string][]*models.Chunk)}
}

func (f *fakeChunkStorage) SaveChunks(chunks []*models.Chunk) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	for _, chunk := range chunks {
		f.saved[chunk.DocumentID] = append(f.saved[chunk.DocumentID], chunk)
	}
	return nil
}

func (f *fakeChunkStorage) GetChunksByDocument(documentID string) ([]*models.Chunk, error) {
	return f.saved[documentID], nil
}

func (f *fakeChunkStorage) DeleteChunksByDocument(documentID string) (int, error) {
	f.purges++
	count := len(f.saved[documentID])
	delete(f.saved, documentID)
	return count, nil
}

func (f *fakeChunkStorage) CountByDocument(documentID string) (int, error) {
	return len(f.saved[documentID]), nil
}

type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(i), 1.0}
	}
	return vectors, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1}, nil
}

type fakeIndex struct {
	upserted  []interfaces.VectorPoint
	deleted   []string
	upsertErr error
	deleteErr error
}

func (f *fakeIndex) EnsureCollection(ctx context.Context) error { return nil }

func (f *fakeIndex) Upsert(ctx context.Context, points []interfaces.VectorPoint) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, points...)
	return nil
}

func (f *fakeIndex) Search(ctx context.Context, vector []float32, limit int, filter *interfaces.SearchFilter) ([]interfaces.SearchHit, error) {
	return nil, nil
}

func (f *fakeIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	f.deleted = append(f.deleted, documentID)
	return f.deleteErr
}

type fakeQueue struct {
	enqueued []models.QueueMessage
}

func (f *fakeQueue) Enqueue(ctx context.Context, msg models.QueueMessage) error {
	f.enqueued = append(f.enqueued, msg)
	return nil
}

func (f *fakeQueue) EnqueueDeduped(ctx context.Context, msg models.QueueMessage, dedupKey string) error {
	f.enqueued = append(f.enqueued, msg)
	return nil
}

func (f *fakeQueue) Receive(ctx context.Context) (*models.QueueMessage, func() error, error) {
	return nil, nil, models.ErrNoMessage
}

func (f *fakeQueue) Close() error { return nil }

type processorFixture struct {
	processor *Processor
	docs      *fakeDocStorage
	chunks    *fakeChunkStorage
	embedder  *fakeEmbedder
	index     *fakeIndex
	queue     *fakeQueue
}

func newFixture(t *testing.T) *processorFixture {
	t.Helper()
	logger := arbor.NewLogger()

	parserSvc := parser.NewService(&common.IngestConfig{
		MinTextLength: 50,
		ChunkSize:     200,
		ChunkOverlap:  40,
	}, logger)

	chunkerSvc, err := chunker.New(200, 40)
	require.NoError(t, err)

	f := &processorFixture{
		docs:     newFakeDocStorage(),
		chunks:   newFakeChunkStorage(),
		embedder: &fakeEmbedder{},
		index:    &fakeIndex{},
		queue:    &fakeQueue{},
	}
	f.processor = NewProcessor(f.docs, f.chunks, parserSvc, chunkerSvc,
		f.embedder, f.index, f.queue, logger)
	return f
}

func seedDocument(f *processorFixture, status models.DocumentStatus) *models.Document {
	doc := &models.Document{
		ID:            "doc_1",
		Title:         "TR 2023/1 Work from home deductions",
		Source:        models.SourceATO,
		Status:        status,
		RefreshPolicy: models.RefreshMonthly,
		Metadata:      map[string]string{"section": "Public rulings"},
	}
	f.docs.docs[doc.ID] = doc
	return doc
}

func sampleContent() []byte {
	return []byte(strings.Repeat("Deductions for home office expenses are available under section 8-1. ", 10))
}

func TestProcessDocument_FullPipeline(t *testing.T) {
	f := newFixture(t)
	seedDocument(f, models.StatusPending)

	err := f.processor.ProcessDocument(context.Background(), "doc_1", sampleContent(), false)
	require.NoError(t, err)

	doc, err := f.docs.GetDocument("doc_1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusIndexed, doc.Status)
	assert.NotEmpty(t, doc.ContentHash)
	assert.NotNil(t, doc.LastCheckedAt)

	// Classifier filled the unset fields from source metadata and text.
	assert.Equal(t, models.DocTypeRuling, doc.DocType)
	assert.Equal(t, models.AudienceProfessional, doc.Audience)
	assert.Equal(t, "deductions", doc.TaxArea)

	// Chunks carry contiguous ordinals and point ids matching the upserts.
	saved := f.chunks.saved["doc_1"]
	require.NotEmpty(t, saved)
	for i, chunk := range saved {
		assert.Equal(t, i, chunk.Ordinal)
		assert.NotEmpty(t, chunk.PointID)
	}
	require.Len(t, f.index.upserted, len(saved))
	assert.Equal(t, saved[0].PointID, f.index.upserted[0].ID)
	assert.Equal(t, "doc_1", f.index.upserted[0].Payload["document_id"])
	assert.Equal(t, saved[0].Content, f.index.upserted[0].Payload["content"])

	// Status history walked the full lifecycle in order.
	assert.Equal(t, []models.DocumentStatus{
		models.StatusParsing,
		models.StatusChunking,
		models.StatusEmbedding,
		models.StatusIndexed,
	}, f.docs.statuses["doc_1"])
}

func TestProcessDocument_ParseFailureIsTerminal(t *testing.T) {
	f := newFixture(t)
	seedDocument(f, models.StatusPending)

	// Below the 50-char minimum: terminal failure, nil return (no retry).
	err := f.processor.ProcessDocument(context.Background(), "doc_1", []byte("too short"), false)
	require.NoError(t, err)

	doc, _ := f.docs.GetDocument("doc_1")
	assert.Equal(t, models.StatusFailed, doc.Status)
	assert.NotEmpty(t, doc.ErrorMessage)
	assert.Zero(t, f.embedder.calls)
}

func TestProcessDocument_RefreshHashMatchShortCircuits(t *testing.T) {
	f := newFixture(t)
	content := sampleContent()

	doc := seedDocument(f, models.StatusIndexed)
	parsed := parser.NormalizeText(string(content))
	doc.ContentHash = common.ContentHash(parsed)
	doc.DocType = models.DocTypeRuling
	doc.Audience = models.AudienceProfessional

	err := f.processor.ProcessDocument(context.Background(), "doc_1", content, true)
	require.NoError(t, err)

	got, _ := f.docs.GetDocument("doc_1")
	assert.Equal(t, models.StatusIndexed, got.Status)
	assert.NotNil(t, got.LastCheckedAt)
	assert.Zero(t, f.embedder.calls, "unchanged content must not be re-embedded")
	assert.Empty(t, f.index.upserted)

	// The document never leaves indexed: the only write keeps the
	// status untouched.
	assert.Equal(t, []models.DocumentStatus{models.StatusIndexed}, f.docs.statuses["doc_1"])

	// Unset fields still get classified on the short-circuit path.
	assert.Equal(t, "deductions", got.TaxArea)
}

func TestProcessDocument_RefreshChangedContentReingests(t *testing.T) {
	f := newFixture(t)
	doc := seedDocument(f, models.StatusIndexed)
	doc.ContentHash = "stale-hash"

	err := f.processor.ProcessDocument(context.Background(), "doc_1", sampleContent(), true)
	require.NoError(t, err)

	got, _ := f.docs.GetDocument("doc_1")
	assert.Equal(t, models.StatusIndexed, got.Status)
	assert.NotEqual(t, "stale-hash", got.ContentHash)
	assert.Equal(t, 1, f.embedder.calls)
	assert.NotEmpty(t, f.index.upserted)
}

func TestProcessDocument_RefreshOfFailedDocSkipsDedup(t *testing.T) {
	f := newFixture(t)
	content := sampleContent()

	// A refresh job that failed after its hash was recorded gets
	// redelivered: the matching hash must not short-circuit a doc that
	// never finished indexing.
	doc := seedDocument(f, models.StatusFailed)
	doc.ContentHash = common.ContentHash(parser.NormalizeText(string(content)))

	err := f.processor.ProcessDocument(context.Background(), "doc_1", content, true)
	require.NoError(t, err)

	got, _ := f.docs.GetDocument("doc_1")
	assert.Equal(t, models.StatusIndexed, got.Status)
	assert.Equal(t, 1, f.embedder.calls)
	assert.NotEmpty(t, f.chunks.saved["doc_1"])
}

func TestProcessDocument_ClassifierNeverOverwrites(t *testing.T) {
	f := newFixture(t)
	doc := seedDocument(f, models.StatusPending)
	doc.DocType = models.DocTypeLegislation
	doc.Audience = models.AudienceBusiness
	doc.TaxArea = "gst"

	err := f.processor.ProcessDocument(context.Background(), "doc_1", sampleContent(), false)
	require.NoError(t, err)

	got, _ := f.docs.GetDocument("doc_1")
	assert.Equal(t, models.DocTypeLegislation, got.DocType)
	assert.Equal(t, models.AudienceBusiness, got.Audience)
	assert.Equal(t, "gst", got.TaxArea)
}

func TestProcessDocument_EmbedFailureRetriable(t *testing.T) {
	f := newFixture(t)
	seedDocument(f, models.StatusPending)
	f.embedder.err = assert.AnError

	err := f.processor.ProcessDocument(context.Background(), "doc_1", sampleContent(), false)
	require.Error(t, err, "non-parse failures propagate for queue retry")

	doc, _ := f.docs.GetDocument("doc_1")
	assert.Equal(t, models.StatusFailed, doc.Status)
	assert.Contains(t, doc.ErrorMessage, "embedding failed")
}

func TestProcessDocument_RedeliverySucceedsAfterTransientFailure(t *testing.T) {
	f := newFixture(t)
	seedDocument(f, models.StatusPending)
	f.embedder.err = assert.AnError

	err := f.processor.ProcessDocument(context.Background(), "doc_1", sampleContent(), false)
	require.Error(t, err)

	doc, _ := f.docs.GetDocument("doc_1")
	require.Equal(t, models.StatusFailed, doc.Status)

	// The embedder recovers and the queue redelivers the same job.
	f.embedder.err = nil
	err = f.processor.ProcessDocument(context.Background(), "doc_1", sampleContent(), false)
	require.NoError(t, err)

	doc, _ = f.docs.GetDocument("doc_1")
	assert.Equal(t, models.StatusIndexed, doc.Status)
	assert.Empty(t, doc.ErrorMessage)
	assert.NotEmpty(t, f.chunks.saved["doc_1"])
	assert.NotEmpty(t, f.index.upserted)
}

func TestProcessDocument_PurgesChunksBeforeInsert(t *testing.T) {
	f := newFixture(t)
	seedDocument(f, models.StatusPending)
	f.chunks.saved["doc_1"] = []*models.Chunk{{ID: "chk_old", DocumentID: "doc_1"}}

	err := f.processor.ProcessDocument(context.Background(), "doc_1", sampleContent(), false)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, f.chunks.purges, 1)
	for _, chunk := range f.chunks.saved["doc_1"] {
		assert.NotEqual(t, "chk_old", chunk.ID)
	}
}

func TestReprocess(t *testing.T) {
	f := newFixture(t)
	doc := seedDocument(f, models.StatusIndexed)
	doc.ContentHash = "abc"
	doc.RawPath = "/data/raw/doc_1.html"
	f.chunks.saved["doc_1"] = []*models.Chunk{{ID: "chk_1", DocumentID: "doc_1"}}

	err := f.processor.Reprocess(context.Background(), "doc_1")
	require.NoError(t, err)

	got, _ := f.docs.GetDocument("doc_1")
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Empty(t, got.ContentHash)
	assert.Empty(t, f.chunks.saved["doc_1"])
	assert.Equal(t, []string{"doc_1"}, f.index.deleted)
	require.Len(t, f.queue.enqueued, 1)
	assert.Equal(t, models.JobTypeIngest, f.queue.enqueued[0].Type)
}

func TestReprocess_FromMidFlightStatus(t *testing.T) {
	for _, status := range []models.DocumentStatus{
		models.StatusParsing,
		models.StatusChunking,
		models.StatusEmbedding,
	} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			seedDocument(f, status)

			err := f.processor.Reprocess(context.Background(), "doc_1")
			require.NoError(t, err)

			got, _ := f.docs.GetDocument("doc_1")
			assert.Equal(t, models.StatusPending, got.Status)
			assert.Len(t, f.queue.enqueued, 1)
		})
	}
}

func TestReprocess_VectorCleanupFailureNotFatal(t *testing.T) {
	f := newFixture(t)
	seedDocument(f, models.StatusFailed)
	f.index.deleteErr = assert.AnError

	err := f.processor.Reprocess(context.Background(), "doc_1")
	require.NoError(t, err)
	assert.Len(t, f.queue.enqueued, 1)
}

func TestDelete_BestEffortVectorCleanup(t *testing.T) {
	f := newFixture(t)
	seedDocument(f, models.StatusIndexed)
	f.chunks.saved["doc_1"] = []*models.Chunk{{ID: "chk_1", DocumentID: "doc_1"}}
	f.index.deleteErr = assert.AnError

	err := f.processor.Delete(context.Background(), "doc_1")
	require.NoError(t, err)

	_, err = f.docs.GetDocument("doc_1")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
	assert.Empty(t, f.chunks.saved["doc_1"])
}
