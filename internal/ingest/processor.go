// -----------------------------------------------------------------------
// Ingestion State Machine - Orchestrates parse, classify, chunk,
// embed and index with persisted status transitions
// -----------------------------------------------------------------------

package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lexa/internal/chunker"
	"github.com/ternarybob/lexa/internal/classifier"
	"github.com/ternarybob/lexa/internal/common"
	"github.com/ternarybob/lexa/internal/interfaces"
	"github.com/ternarybob/lexa/internal/models"
	"github.com/ternarybob/lexa/internal/parser"
	"github.com/ternarybob/lexa/internal/vectorindex"
)

// classifyPrefixLen bounds how much text the tax-area rules inspect.
const classifyPrefixLen = 2000

// Processor drives a document through the ingestion lifecycle.
type Processor struct {
	documents interfaces.DocumentStorage
	chunks    interfaces.ChunkStorage
	parser    *parser.Service
	chunker   *chunker.Chunker
	embedder  interfaces.EmbeddingClient
	index     interfaces.VectorIndex
	queue     interfaces.JobQueue
	logger    arbor.ILogger
}

// NewProcessor creates a new ingestion processor
func NewProcessor(
	documents interfaces.DocumentStorage,
	chunks interfaces.ChunkStorage,
	parserSvc *parser.Service,
	chunkerSvc *chunker.Chunker,
	embedder interfaces.EmbeddingClient,
	index interfaces.VectorIndex,
	queue interfaces.JobQueue,
	logger arbor.ILogger,
) *Processor {
	return &Processor{
		documents: documents,
		chunks:    chunks,
		parser:    parserSvc,
		chunker:   chunkerSvc,
		embedder:  embedder,
		index:     index,
		queue:     queue,
		logger:    logger,
	}
}

// ProcessDocument runs the full ingestion sequence. Parse failures are
// terminal: the document is failed and nil is returned so the queue
// does not retry unusable content. Any later failure marks the document
// failed and returns the error for queue-level retry/backoff; a
// redelivery of the same job re-enters parsing from failed and runs
// the pipeline again.
func (p *Processor) ProcessDocument(ctx context.Context, documentID string, content []byte, isRefresh bool) error {
	doc, err := p.documents.GetDocument(documentID)
	if err != nil {
		return fmt.Errorf("failed to load document: %w", err)
	}

	if len(content) == 0 && doc.RawPath != "" {
		content, err = os.ReadFile(doc.RawPath)
		if err != nil {
			return p.failAndReturn(doc, fmt.Errorf("failed to read raw file %s: %w", doc.RawPath, err))
		}
	}

	// Refresh dedup runs before any status change. When the stored hash
	// matches, only the check timestamp is recorded and the document
	// never leaves indexed; classification still fills fields that are
	// unset since rules may have evolved since first ingestion. A doc
	// that is not indexed (failed or wedged mid-flight) skips the dedup
	// and runs the full pipeline even when the hash matches.
	var (
		parsed   *parser.Result
		parseErr error
	)
	if isRefresh && doc.Status == models.StatusIndexed {
		parsed, parseErr = p.parser.Parse(ctx, content)
		if parseErr == nil && doc.ContentHash == common.ContentHash(parsed.Text) {
			if doc.Title == "" && parsed.Title != "" {
				doc.Title = parsed.Title
			}
			p.applyClassification(doc, parsed.Text)
			now := time.Now()
			doc.LastCheckedAt = &now
			if err := p.documents.SaveDocument(doc); err != nil {
				return fmt.Errorf("failed to record refresh check: %w", err)
			}
			p.logger.Info().
				Str("document_id", doc.ID).
				Msg("Refresh found unchanged content, skipping re-embedding")
			return nil
		}
	}

	if err := p.transition(doc, models.StatusParsing); err != nil {
		return err
	}

	// Step 1: parse. Too-short text means the content itself is
	// unusable; fail terminally without retry. Refresh jobs carry the
	// parse outcome forward from the dedup check above.
	if parsed == nil && parseErr == nil {
		parsed, parseErr = p.parser.Parse(ctx, content)
	}
	if parseErr != nil {
		if errors.Is(parseErr, parser.ErrTextTooShort) {
			p.failDocument(doc, parseErr)
			p.logger.Warn().
				Str("document_id", doc.ID).
				Err(parseErr).
				Msg("Parse produced unusable text, not retrying")
			return nil
		}
		return p.failAndReturn(doc, fmt.Errorf("parse failed: %w", parseErr))
	}

	if doc.Title == "" && parsed.Title != "" {
		doc.Title = parsed.Title
	}

	// Step 2: content changed (or first ingestion); record the new hash.
	doc.ContentHash = common.ContentHash(parsed.Text)

	// Step 3: classify. Administrator-set values always win.
	p.applyClassification(doc, parsed.Text)

	// Step 4: chunk. Existing chunk rows are purged first so ordinals
	// stay contiguous after re-ingestion.
	if err := p.transition(doc, models.StatusChunking); err != nil {
		return err
	}

	if _, err := p.chunks.DeleteChunksByDocument(doc.ID); err != nil {
		return p.failAndReturn(doc, fmt.Errorf("failed to purge existing chunks: %w", err))
	}

	pieces := p.chunker.Split(parsed.Text)
	if len(pieces) == 0 {
		return p.failAndReturn(doc, fmt.Errorf("chunker produced no chunks"))
	}

	chunkMetadata := p.chunkMetadata(doc)
	chunks := make([]*models.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = &models.Chunk{
			ID:         common.NewChunkID(),
			DocumentID: doc.ID,
			Content:    piece,
			Ordinal:    i,
			Metadata:   chunkMetadata,
		}
	}

	// Step 5: embed.
	if err := p.transition(doc, models.StatusEmbedding); err != nil {
		return err
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}
	vectors, err := p.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return p.failAndReturn(doc, fmt.Errorf("embedding failed: %w", err))
	}

	// Step 6: index, then persist chunk rows carrying their point ids.
	points := make([]interfaces.VectorPoint, len(chunks))
	for i, chunk := range chunks {
		chunk.PointID = vectorindex.PointID(doc.ID, chunk.Ordinal)
		points[i] = interfaces.VectorPoint{
			ID:      chunk.PointID,
			Vector:  vectors[i],
			Payload: p.pointPayload(doc, chunk),
		}
	}
	if err := p.index.Upsert(ctx, points); err != nil {
		return p.failAndReturn(doc, fmt.Errorf("vector upsert failed: %w", err))
	}
	if err := p.chunks.SaveChunks(chunks); err != nil {
		return p.failAndReturn(doc, fmt.Errorf("failed to save chunks: %w", err))
	}

	// Step 7: done.
	now := time.Now()
	doc.LastCheckedAt = &now
	if err := p.transition(doc, models.StatusIndexed); err != nil {
		return err
	}

	p.logger.Info().
		Str("document_id", doc.ID).
		Int("chunks", len(chunks)).
		Bool("refresh", isRefresh).
		Msg("Document indexed")
	return nil
}

// Reprocess purges a document's chunks and vectors, resets it to
// pending and enqueues a fresh ingestion job.
func (p *Processor) Reprocess(ctx context.Context, documentID string) error {
	doc, err := p.documents.GetDocument(documentID)
	if err != nil {
		return err
	}

	if _, err := p.chunks.DeleteChunksByDocument(doc.ID); err != nil {
		return fmt.Errorf("failed to purge chunks: %w", err)
	}
	if err := p.index.DeleteByDocument(ctx, doc.ID); err != nil {
		// Orphaned vectors are overwritten on re-ingestion anyway.
		p.logger.Warn().Err(err).Str("document_id", doc.ID).Msg("Vector cleanup failed, continuing")
	}

	doc.ContentHash = ""
	if err := p.transition(doc, models.StatusPending); err != nil {
		return err
	}

	msg, err := models.NewIngestMessage(models.JobTypeIngest, models.IngestPayload{
		DocumentID: doc.ID,
		FilePath:   doc.RawPath,
	})
	if err != nil {
		return fmt.Errorf("failed to build ingest message: %w", err)
	}
	if err := p.queue.EnqueueDeduped(ctx, msg, doc.ID); err != nil {
		return fmt.Errorf("failed to enqueue reprocess job: %w", err)
	}

	p.logger.Info().Str("document_id", doc.ID).Msg("Document queued for reprocessing")
	return nil
}

// Delete removes the document and its chunks. Vector cleanup is
// best-effort; its failure never blocks the primary deletion.
func (p *Processor) Delete(ctx context.Context, documentID string) error {
	if err := p.index.DeleteByDocument(ctx, documentID); err != nil {
		p.logger.Warn().Err(err).Str("document_id", documentID).Msg("Vector cleanup failed, continuing with deletion")
	}
	if _, err := p.chunks.DeleteChunksByDocument(documentID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if err := p.documents.DeleteDocument(documentID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	p.logger.Info().Str("document_id", documentID).Msg("Document deleted")
	return nil
}

// applyClassification fills doc type, audience and tax area where they
// are unset. Values supplied by administrators or scrapers always win.
func (p *Processor) applyClassification(doc *models.Document, text string) {
	inferred := classifier.Classify(doc.Source, doc.Metadata)
	if doc.DocType == "" {
		doc.DocType = inferred.DocType
	}
	if doc.Audience == "" {
		doc.Audience = inferred.Audience
	}
	if doc.TaxArea == "" {
		prefix := text
		if len(prefix) > classifyPrefixLen {
			prefix = prefix[:classifyPrefixLen]
		}
		doc.TaxArea = classifier.InferTaxArea(doc.Title, prefix)
	}
}

// chunkMetadata merges document-level fields into the bag every chunk
// carries for retrieval-time filtering.
func (p *Processor) chunkMetadata(doc *models.Document) map[string]string {
	metadata := map[string]string{
		"title":  doc.Title,
		"source": string(doc.Source),
	}
	if doc.DocType != "" {
		metadata["doc_type"] = string(doc.DocType)
	}
	if doc.Audience != "" {
		metadata["audience"] = string(doc.Audience)
	}
	if doc.TaxArea != "" {
		metadata["tax_area"] = doc.TaxArea
	}
	if doc.SourceURL != "" {
		metadata["source_url"] = doc.SourceURL
	}
	if section, ok := doc.Metadata["section"]; ok {
		metadata["section"] = section
	}
	return metadata
}

// pointPayload builds the vector payload: chunk content plus the
// flattened metadata bag for filterable search.
func (p *Processor) pointPayload(doc *models.Document, chunk *models.Chunk) map[string]interface{} {
	payload := map[string]interface{}{
		"chunk_id":    chunk.ID,
		"document_id": doc.ID,
		"content":     chunk.Content,
		"ordinal":     chunk.Ordinal,
	}
	for key, value := range chunk.Metadata {
		payload[key] = value
	}
	return payload
}

// transition persists a status change immediately so the pipeline view
// reflects progress in real time.
func (p *Processor) transition(doc *models.Document, next models.DocumentStatus) error {
	if err := doc.TransitionTo(next); err != nil {
		return err
	}
	if err := p.documents.SaveDocument(doc); err != nil {
		return fmt.Errorf("failed to persist %s transition: %w", next, err)
	}
	return nil
}

// failDocument marks the document failed, tolerating persistence errors.
func (p *Processor) failDocument(doc *models.Document, cause error) {
	if err := doc.Fail(cause.Error()); err != nil {
		p.logger.Warn().Err(err).Str("document_id", doc.ID).Msg("Could not mark document failed")
		return
	}
	if err := p.documents.SaveDocument(doc); err != nil {
		p.logger.Warn().Err(err).Str("document_id", doc.ID).Msg("Could not persist failed status")
	}
}

// failAndReturn fails the document and returns the cause so the queue
// applies its retry policy.
func (p *Processor) failAndReturn(doc *models.Document, cause error) error {
	p.failDocument(doc, cause)
	return cause
}
