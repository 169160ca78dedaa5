// -----------------------------------------------------------------------
// Context Assembler - Dedup, order and token-budget reranked chunks
// into a single generation prompt context
// -----------------------------------------------------------------------

package contextbuilder

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lexa/internal/models"
)

const (
	// dedupPrefixLen is how many leading characters two chunks must
	// share to be treated as near-duplicates.
	dedupPrefixLen = 200

	// charsPerToken is the estimation ratio for the token budget.
	charsPerToken = 4

	chunkDelimiter = "\n\n---\n\n"
)

// AssembledContext is the budget-filtered subset of ranked chunks chosen
// for one generation call plus its rendered prompt text.
type AssembledContext struct {
	Chunks        []models.RankedChunk
	Text          string
	TotalTokens   int
	DroppedChunks int
}

// Assembler builds generation context from reranked chunks.
type Assembler struct {
	logger arbor.ILogger
}

// NewAssembler creates a new context assembler
func NewAssembler(logger arbor.ILogger) *Assembler {
	return &Assembler{logger: logger}
}

// Assemble deduplicates, orders and budget-fills the ranked chunks.
// Ordering groups chunks by owning document, ranks the groups by their
// best rerank score and restores ordinal reading order inside each
// group. The budget fill stops at the first chunk that would overflow;
// it and everything after it count as dropped.
func (a *Assembler) Assemble(ranked []models.RankedChunk, tokenBudget int) *AssembledContext {
	deduped, dropped := dedupByPrefix(ranked)
	ordered := orderByDocument(deduped)

	var included []models.RankedChunk
	totalTokens := 0
	for i, chunk := range ordered {
		cost := estimateTokens(chunk.Content)
		if totalTokens+cost > tokenBudget {
			dropped += len(ordered) - i
			break
		}
		included = append(included, chunk)
		totalTokens += cost
	}

	ctx := &AssembledContext{
		Chunks:        included,
		Text:          render(included),
		TotalTokens:   totalTokens,
		DroppedChunks: dropped,
	}

	a.logger.Debug().
		Int("input", len(ranked)).
		Int("included", len(included)).
		Int("dropped", dropped).
		Int("tokens", totalTokens).
		Msg("Assembled context")
	return ctx
}

// dedupByPrefix drops chunks whose leading characters repeat an earlier
// chunk. Cheap near-duplicate detection without full-text comparison.
func dedupByPrefix(chunks []models.RankedChunk) ([]models.RankedChunk, int) {
	seen := make(map[string]bool, len(chunks))
	var kept []models.RankedChunk
	dropped := 0
	for _, chunk := range chunks {
		prefix := chunk.Content
		if len(prefix) > dedupPrefixLen {
			prefix = prefix[:dedupPrefixLen]
		}
		if seen[prefix] {
			dropped++
			continue
		}
		seen[prefix] = true
		kept = append(kept, chunk)
	}
	return kept, dropped
}

// orderByDocument groups chunks by document, ranks groups by their
// highest rerank score and sorts each group by ordinal.
func orderByDocument(chunks []models.RankedChunk) []models.RankedChunk {
	groups := make(map[string][]models.RankedChunk)
	var docOrder []string
	best := make(map[string]float32)

	for _, chunk := range chunks {
		id := chunk.DocumentID
		if _, ok := groups[id]; !ok {
			docOrder = append(docOrder, id)
		}
		groups[id] = append(groups[id], chunk)
		if chunk.RerankScore > best[id] {
			best[id] = chunk.RerankScore
		}
	}

	sort.SliceStable(docOrder, func(i, j int) bool {
		return best[docOrder[i]] > best[docOrder[j]]
	})

	var ordered []models.RankedChunk
	for _, id := range docOrder {
		group := groups[id]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Ordinal < group[j].Ordinal
		})
		ordered = append(ordered, group...)
	}
	return ordered
}

// render labels each chunk with a numbered source header so generated
// answers can reference them and citations can align by index.
func render(chunks []models.RankedChunk) string {
	if len(chunks) == 0 {
		return ""
	}

	parts := make([]string, len(chunks))
	for i, chunk := range chunks {
		header := fmt.Sprintf("[Source %d] (%s) %s",
			i+1,
			humanDocType(chunk.Metadata["doc_type"]),
			chunk.Metadata["title"])
		parts[i] = strings.TrimRight(header, " ") + "\n" + chunk.Content
	}
	return strings.Join(parts, chunkDelimiter)
}

// humanDocType converts the enum value into reader-facing wording.
func humanDocType(docType string) string {
	switch models.DocType(docType) {
	case models.DocTypeRuling:
		return "Ruling"
	case models.DocTypeLegislation:
		return "Legislation"
	case models.DocTypeGuidance:
		return "Guidance"
	case models.DocTypeForm:
		return "Form"
	default:
		return "Document"
	}
}

func estimateTokens(text string) int {
	tokens := len(text) / charsPerToken
	if tokens == 0 && len(text) > 0 {
		tokens = 1
	}
	return tokens
}
