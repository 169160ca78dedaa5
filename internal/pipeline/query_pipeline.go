// -----------------------------------------------------------------------
// Query Pipeline - Retrieve, rerank, assemble, generate, cite, persist
// -----------------------------------------------------------------------

package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lexa/internal/common"
	"github.com/ternarybob/lexa/internal/contextbuilder"
	"github.com/ternarybob/lexa/internal/interfaces"
	"github.com/ternarybob/lexa/internal/models"
	"github.com/ternarybob/lexa/internal/retriever"
)

const defaultSystemPrompt = `You are an assistant answering questions about Australian tax law and regulatory guidance. Answer only from the provided sources and cite them inline as [Source N]. If the sources do not cover the question, say so plainly.`

// persistQueueDepth bounds the fire-and-forget persistence channel.
const persistQueueDepth = 64

// QueryPipeline orchestrates one question end to end.
type QueryPipeline struct {
	config        *common.Config
	retriever     *retriever.Service
	reranker      interfaces.Reranker
	assembler     *contextbuilder.Assembler
	provider      interfaces.GenerationProvider
	queries       interfaces.QueryStorage
	conversations interfaces.ConversationStorage
	cache         interfaces.QueryCache
	logger        arbor.ILogger

	persistCh chan *models.QueryRecord
	closeOnce sync.Once
	done      chan struct{}
}

// NewQueryPipeline creates a new query pipeline
func NewQueryPipeline(
	config *common.Config,
	retrieverSvc *retriever.Service,
	reranker interfaces.Reranker,
	assembler *contextbuilder.Assembler,
	provider interfaces.GenerationProvider,
	queries interfaces.QueryStorage,
	conversations interfaces.ConversationStorage,
	cache interfaces.QueryCache,
	logger arbor.ILogger,
) *QueryPipeline {
	p := &QueryPipeline{
		config:        config,
		retriever:     retrieverSvc,
		reranker:      reranker,
		assembler:     assembler,
		provider:      provider,
		queries:       queries,
		conversations: conversations,
		cache:         cache,
		logger:        logger,
		persistCh:     make(chan *models.QueryRecord, persistQueueDepth),
		done:          make(chan struct{}),
	}
	go p.persistLoop()
	return p
}

// Execute answers one question. Retrieval, rerank and generation
// failures propagate; persistence and caching failures are logged and
// swallowed so they never fail a user-facing response.
func (p *QueryPipeline) Execute(ctx context.Context, question string, opts interfaces.QueryOptions) (*interfaces.RAGResponse, error) {
	start := time.Now()
	p.applyDefaults(&opts)

	conversational := opts.ConversationID != ""

	// Step 1: cache check, non-conversational only.
	cacheKey := p.cacheKey(question, opts)
	if !conversational {
		if cached, ok := p.cache.Get(cacheKey); ok {
			var response interfaces.RAGResponse
			if err := json.Unmarshal(cached, &response); err == nil {
				response.Cached = true
				response.Timings.TotalMs = time.Since(start).Milliseconds()
				p.logger.Debug().Str("cache_key", cacheKey).Msg("Query served from cache")
				return &response, nil
			}
			p.logger.Warn().Str("cache_key", cacheKey).Msg("Discarding undecodable cache entry")
		}
	}

	// Step 2: conversation resolution.
	conversationID := opts.ConversationID
	var history []models.Turn
	if conversational {
		turns, err := p.conversations.RecentTurns(conversationID, p.config.Query.HistoryTurns)
		if err != nil {
			return nil, fmt.Errorf("failed to load conversation %s: %w", conversationID, err)
		}
		history = turns
	} else {
		conv, err := p.conversations.CreateConversation()
		if err != nil {
			return nil, fmt.Errorf("failed to create conversation: %w", err)
		}
		conversationID = conv.ID
	}

	var timings interfaces.Timings

	// Step 3: retrieve, rerank, assemble.
	stageStart := time.Now()
	retrieved, err := p.retriever.Retrieve(ctx, question, opts.TopK, opts.Filters)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}
	timings.RetrievalMs = time.Since(stageStart).Milliseconds()

	stageStart = time.Now()
	ranked, err := p.reranker.Rerank(ctx, question, retrieved, opts.RerankTopN)
	if err != nil {
		return nil, fmt.Errorf("rerank failed: %w", err)
	}
	timings.RerankMs = time.Since(stageStart).Milliseconds()

	stageStart = time.Now()
	assembled := p.assembler.Assemble(ranked, opts.TokenBudget)
	timings.AssemblyMs = time.Since(stageStart).Milliseconds()

	// Step 4: generate.
	stageStart = time.Now()
	messages := p.buildMessages(question, assembled.Text, history)
	completion, err := p.provider.Complete(ctx, messages, p.config.LLM.MaxTokens, p.config.LLM.Temperature)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}
	timings.GenerationMs = time.Since(stageStart).Milliseconds()
	timings.TotalMs = time.Since(start).Milliseconds()

	// Step 5: cite. One citation per context chunk, in context order,
	// so citation k resolves the [Source k+1] marker.
	citations := buildCitations(assembled.Chunks)

	response := &interfaces.RAGResponse{
		Answer:         completion.Content,
		Citations:      citations,
		ConversationID: conversationID,
		Timings:        timings,
		Metadata: interfaces.ResponseMetadata{
			RetrievedCount: len(retrieved),
			RerankedCount:  len(ranked),
			ContextChunks:  len(assembled.Chunks),
			ContextTokens:  assembled.TotalTokens,
			DroppedChunks:  assembled.DroppedChunks,
			Provider:       p.provider.Name(),
			Model:          p.config.LLM.Model,
		},
	}

	// Step 6: fire-and-forget persistence. The turn is appended for new
	// conversations too, so a follow-up using the returned conversation
	// id sees the first exchange in its history.
	p.persistAsync(question, conversationID, completion, assembled, timings)
	if err := p.conversations.AppendTurn(conversationID, models.Turn{
		Question: question,
		Answer:   completion.Content,
		AskedAt:  time.Now(),
	}); err != nil {
		p.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("Failed to append conversation turn")
	}

	// Step 7: cache store, non-conversational only.
	if !conversational {
		ttl := common.MustDuration(p.config.Query.CacheTTL, time.Hour)
		if encoded, err := json.Marshal(response); err == nil {
			if err := p.cache.Set(cacheKey, encoded, ttl); err != nil {
				p.logger.Warn().Err(err).Msg("Failed to cache query response")
			}
		}
	}

	return response, nil
}

// Close drains the persistence channel.
func (p *QueryPipeline) Close() {
	p.closeOnce.Do(func() {
		close(p.persistCh)
		<-p.done
	})
}

func (p *QueryPipeline) applyDefaults(opts *interfaces.QueryOptions) {
	if opts.TopK <= 0 {
		opts.TopK = p.config.Query.TopK
	}
	if opts.RerankTopN <= 0 {
		opts.RerankTopN = p.config.Query.RerankTopN
	}
	if opts.TokenBudget <= 0 {
		opts.TokenBudget = p.config.Query.TokenBudget
	}
}

// cacheKey fingerprints the normalized question plus every option that
// changes the answer. Filters are serialized in sorted key order so
// equivalent filters hash identically.
func (p *QueryPipeline) cacheKey(question string, opts interfaces.QueryOptions) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(question), " "))

	var filterPart string
	if !opts.Filters.IsZero() {
		fields := map[string]string{
			"source":      opts.Filters.Source,
			"document_id": opts.Filters.DocumentID,
			"doc_type":    opts.Filters.DocType,
			"audience":    opts.Filters.Audience,
			"tax_area":    opts.Filters.TaxArea,
		}
		keys := make([]string, 0, len(fields))
		for key, value := range fields {
			if value != "" {
				keys = append(keys, key+"="+value)
			}
		}
		sort.Strings(keys)
		filterPart = strings.Join(keys, "&")
	}

	sum := sha256.Sum256([]byte(normalized + "|" + strconv.Itoa(opts.TopK) + "|" + filterPart))
	return hex.EncodeToString(sum[:])
}

// buildMessages assembles the generation conversation: system prompt,
// prior turns oldest first as alternating user/assistant pairs, then
// the current question with the retrieved context inlined.
func (p *QueryPipeline) buildMessages(question, contextText string, history []models.Turn) []interfaces.Message {
	system := p.config.LLM.SystemPrompt
	if system == "" {
		system = defaultSystemPrompt
	}

	messages := make([]interfaces.Message, 0, 2+2*len(history))
	messages = append(messages, interfaces.Message{Role: "system", Content: system})

	for _, turn := range history {
		messages = append(messages,
			interfaces.Message{Role: "user", Content: turn.Question},
			interfaces.Message{Role: "assistant", Content: turn.Answer},
		)
	}

	var prompt strings.Builder
	if contextText != "" {
		prompt.WriteString("Sources:\n\n")
		prompt.WriteString(contextText)
		prompt.WriteString("\n\nQuestion: ")
	}
	prompt.WriteString(question)

	return append(messages, interfaces.Message{Role: "user", Content: prompt.String()})
}

// buildCitations emits one citation per included chunk, in context
// order, mirroring the [Source N] markers.
func buildCitations(chunks []models.RankedChunk) []interfaces.Citation {
	citations := make([]interfaces.Citation, len(chunks))
	for i, chunk := range chunks {
		citations[i] = interfaces.Citation{
			Title:     chunk.Metadata["title"],
			SourceURL: chunk.Metadata["source_url"],
			Section:   chunk.Metadata["section"],
			Score:     chunk.RerankScore,
		}
	}
	return citations
}

func (p *QueryPipeline) persistAsync(question, conversationID string, completion *interfaces.Completion, assembled *contextbuilder.AssembledContext, timings interfaces.Timings) {
	chunkIDs := make([]string, len(assembled.Chunks))
	for i, chunk := range assembled.Chunks {
		chunkIDs[i] = chunk.ChunkID
	}

	record := &models.QueryRecord{
		ID:             common.NewQueryID(),
		ConversationID: conversationID,
		Question:       question,
		Answer:         completion.Content,
		ChunkIDs:       chunkIDs,
		Metadata: map[string]string{
			"provider":      p.provider.Name(),
			"model":         p.config.LLM.Model,
			"finish_reason": completion.FinishReason,
			"input_tokens":  strconv.Itoa(completion.Usage.InputTokens),
			"output_tokens": strconv.Itoa(completion.Usage.OutputTokens),
			"total_ms":      strconv.FormatInt(timings.TotalMs, 10),
		},
		CreatedAt: time.Now(),
	}

	select {
	case p.persistCh <- record:
	default:
		p.logger.Warn().Str("query_id", record.ID).Msg("Persistence queue full, dropping query record")
	}
}

// persistLoop writes query records in the background. Failures are
// logged, never surfaced to the caller.
func (p *QueryPipeline) persistLoop() {
	defer close(p.done)
	for record := range p.persistCh {
		if err := p.queries.SaveQuery(record); err != nil {
			p.logger.Warn().Err(err).Str("query_id", record.ID).Msg("Failed to persist query record")
		}
	}
}
