// -----------------------------------------------------------------------
// Retriever Service - Embed a query and run a filtered vector search
// -----------------------------------------------------------------------

package retriever

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lexa/internal/interfaces"
	"github.com/ternarybob/lexa/internal/models"
)

// Service is a thin, stateless translation layer: one round-trip to the
// embedding provider, one to the vector index.
type Service struct {
	embedder interfaces.EmbeddingClient
	index    interfaces.VectorIndex
	logger   arbor.ILogger
}

// NewService creates a new retriever service
func NewService(embedder interfaces.EmbeddingClient, index interfaces.VectorIndex, logger arbor.ILogger) *Service {
	return &Service{
		embedder: embedder,
		index:    index,
		logger:   logger,
	}
}

// Retrieve embeds the query, searches the index and maps hits into
// retrieved chunks. No reranking or further filtering happens here.
func (s *Service) Retrieve(ctx context.Context, query string, topK int, filter *interfaces.SearchFilter) ([]models.RetrievedChunk, error) {
	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := s.index.Search(ctx, vector, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	chunks := make([]models.RetrievedChunk, 0, len(hits))
	for _, hit := range hits {
		chunks = append(chunks, hitToChunk(hit))
	}

	s.logger.Debug().
		Int("top_k", topK).
		Int("hits", len(chunks)).
		Msg("Retrieved chunks")
	return chunks, nil
}

// hitToChunk projects a raw search hit onto the uniform chunk shape the
// rest of the query pipeline consumes.
func hitToChunk(hit interfaces.SearchHit) models.RetrievedChunk {
	chunk := models.RetrievedChunk{
		ChunkID: hit.ID,
		Score:   hit.Score,
	}

	if v, ok := hit.Payload["chunk_id"].(string); ok {
		chunk.ChunkID = v
	}
	if v, ok := hit.Payload["document_id"].(string); ok {
		chunk.DocumentID = v
	}
	if v, ok := hit.Payload["content"].(string); ok {
		chunk.Content = v
	}
	if v, ok := hit.Payload["ordinal"].(float64); ok {
		chunk.Ordinal = int(v)
	}

	metadata := make(map[string]string)
	for key, value := range hit.Payload {
		switch key {
		case "chunk_id", "document_id", "content", "ordinal":
			continue
		}
		if str, ok := value.(string); ok {
			metadata[key] = str
		}
	}
	if len(metadata) > 0 {
		chunk.Metadata = metadata
	}

	return chunk
}
