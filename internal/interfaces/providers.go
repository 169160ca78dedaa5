package interfaces

import (
	"context"

	"github.com/ternarybob/lexa/internal/models"
)

// EmbeddingClient turns texts into vectors via an external embedding service.
// Output preserves 1:1 order correspondence with input regardless of how the
// client batches requests internally.
type EmbeddingClient interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorPoint is one entry upserted into the similarity index. The payload
// mirrors chunk content plus a flattened metadata bag for filterable search.
type VectorPoint struct {
	ID      string
	Vector  []float32
	Payload map[string]interface{}
}

// SearchHit is one raw similarity-search result.
type SearchHit struct {
	ID      string
	Score   float32
	Payload map[string]interface{}
}

// SearchFilter restricts a similarity search; provided fields are ANDed.
type SearchFilter struct {
	Source     string `json:"source,omitempty"`
	DocumentID string `json:"document_id,omitempty"`
	DocType    string `json:"doc_type,omitempty"`
	Audience   string `json:"audience,omitempty"`
	TaxArea    string `json:"tax_area,omitempty"`
}

// IsZero reports whether no filter fields are set.
func (f *SearchFilter) IsZero() bool {
	return f == nil || *f == SearchFilter{}
}

// VectorIndex owns the external similarity index collection lifecycle.
type VectorIndex interface {
	// EnsureCollection is idempotent and safe to call on every startup;
	// concurrent creation races must not fail fatally.
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, points []VectorPoint) error
	Search(ctx context.Context, vector []float32, limit int, filter *SearchFilter) ([]SearchHit, error)
	// DeleteByDocument is best-effort: callers log failures and continue.
	DeleteByDocument(ctx context.Context, documentID string) error
}

// Reranker reorders retrieved candidates with a cross-encoder service.
type Reranker interface {
	Rerank(ctx context.Context, query string, chunks []models.RetrievedChunk, topN int) ([]models.RankedChunk, error)
}

// Message is one turn of a generation conversation.
type Message struct {
	Role    string `json:"role"` // system, user or assistant
	Content string `json:"content"`
}

// TokenUsage reports provider-side token accounting for one completion.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Completion is the result of one generation call.
type Completion struct {
	Content      string     `json:"content"`
	FinishReason string     `json:"finish_reason"`
	Usage        TokenUsage `json:"usage"`
}

// GenerationProvider produces chat completions.
type GenerationProvider interface {
	Complete(ctx context.Context, messages []Message, maxTokens int, temperature float32) (*Completion, error)
	HealthCheck(ctx context.Context) error
	Name() string
}
