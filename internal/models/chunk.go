package models

import "time"

// Chunk is a contiguous slice of a document's normalized text. Ordinals are
// contiguous from 0 within a document and stable for the chunk's lifetime.
type Chunk struct {
	ID         string `json:"id" badgerhold:"key"`
	DocumentID string `json:"document_id" badgerhold:"index"`
	Content    string `json:"content"`
	Ordinal    int    `json:"ordinal"`

	// PointID references the vector-index entry for this chunk.
	PointID string `json:"point_id"`

	// Metadata duplicates document-level fields (title, source, doc type,
	// audience, tax area, section) for retrieval-time filtering without a join.
	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// RetrievedChunk is an in-memory projection of a chunk plus its similarity
// score. It exists only within one query's execution.
type RetrievedChunk struct {
	ChunkID    string
	DocumentID string
	Ordinal    int
	Content    string
	Metadata   map[string]string
	Score      float32
}

// RankedChunk adds a second-pass relevance score to a retrieved chunk.
type RankedChunk struct {
	RetrievedChunk
	RerankScore float32
}
