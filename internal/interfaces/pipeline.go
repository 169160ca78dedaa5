package interfaces

// QueryOptions tune one query-pipeline execution. Zero values fall back to
// configured defaults.
type QueryOptions struct {
	TopK           int           `json:"top_k,omitempty"`
	RerankTopN     int           `json:"rerank_top_n,omitempty"`
	TokenBudget    int           `json:"token_budget,omitempty"`
	Filters        *SearchFilter `json:"filters,omitempty"`
	ConversationID string        `json:"conversation_id,omitempty"`
}

// Citation ties an answer's inline [Source N] marker to a retrieved chunk.
// Citation index k maps to the marker [Source k+1].
type Citation struct {
	Title     string  `json:"title"`
	SourceURL string  `json:"source_url"`
	Section   string  `json:"section,omitempty"`
	Score     float32 `json:"score"`
}

// Timings records per-stage wall-clock durations in milliseconds.
type Timings struct {
	RetrievalMs  int64 `json:"retrieval_ms"`
	RerankMs     int64 `json:"rerank_ms"`
	AssemblyMs   int64 `json:"assembly_ms"`
	GenerationMs int64 `json:"generation_ms"`
	TotalMs      int64 `json:"total_ms"`
}

// ResponseMetadata surfaces pipeline internals for transparency.
type ResponseMetadata struct {
	RetrievedCount int    `json:"retrieved_count"`
	RerankedCount  int    `json:"reranked_count"`
	ContextChunks  int    `json:"context_chunks"`
	ContextTokens  int    `json:"context_tokens"`
	DroppedChunks  int    `json:"dropped_chunks"`
	Provider       string `json:"provider,omitempty"`
	Model          string `json:"model,omitempty"`
}

// RAGResponse is the produced interface of one query execution.
type RAGResponse struct {
	Answer         string           `json:"answer"`
	Citations      []Citation       `json:"citations"`
	ConversationID string           `json:"conversation_id"`
	Cached         bool             `json:"cached"`
	Timings        Timings          `json:"timings"`
	Metadata       ResponseMetadata `json:"metadata"`
}
