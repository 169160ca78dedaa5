// -----------------------------------------------------------------------
// Chunker Service - Split normalized text into overlapping segments
// Prefers structural legal-document boundaries over arbitrary cuts
// -----------------------------------------------------------------------

package chunker

import (
	"fmt"
	"strings"
)

// separators is the split priority list: hierarchical legal markers
// first, then paragraph, line, sentence and finally word boundaries.
var separators = []string{
	"\n\nPart ",
	"\n\nSection ",
	"\n\nArticle ",
	"\n\n§",
	"\n\n",
	"\n",
	". ",
	" ",
}

// Chunker splits text into overlapping windows of a target size.
type Chunker struct {
	size    int
	overlap int
}

// New creates a Chunker. Overlap must be smaller than size.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must satisfy 0 <= overlap < size, got overlap=%d size=%d", overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Split breaks text into chunks of at most the configured size. Each
// chunk after the first begins with the tail of its predecessor so that
// boundary context survives retrieval. Chunks are non-empty and ordered;
// stripping each chunk's overlap prefix and concatenating reconstructs
// the input exactly.
func (c *Chunker) Split(text string) []string {
	if text == "" {
		return nil
	}
	if len(text) <= c.size {
		return []string{text}
	}

	atoms := splitToAtoms(text, c.size-c.overlap, separators)

	var chunks []string
	var current strings.Builder
	budget := c.size - c.overlap

	flush := func() {
		if current.Len() == 0 {
			return
		}
		body := current.String()
		if len(chunks) > 0 {
			prev := chunks[len(chunks)-1]
			chunks = append(chunks, overlapTail(prev, c.overlap)+body)
		} else {
			chunks = append(chunks, body)
		}
		current.Reset()
	}

	for _, atom := range atoms {
		if current.Len() > 0 && current.Len()+len(atom) > budget {
			flush()
		}
		current.WriteString(atom)
	}
	flush()

	return chunks
}

// OverlapPrefixLen reports how many leading characters of the chunk at
// the given position repeat the previous chunk's tail. Zero for the
// first chunk.
func (c *Chunker) OverlapPrefixLen(chunks []string, i int) int {
	if i <= 0 || i >= len(chunks) {
		return 0
	}
	return len(overlapTail(chunks[i-1], c.overlap))
}

// overlapTail returns the trailing overlap characters of prev, or all
// of prev when it is shorter than the overlap.
func overlapTail(prev string, overlap int) string {
	if overlap <= 0 {
		return ""
	}
	if len(prev) <= overlap {
		return prev
	}
	return prev[len(prev)-overlap:]
}

// splitToAtoms recursively breaks text into lossless pieces no longer
// than maxLen, trying the separator list in priority order. Separators
// stay attached to the piece they introduce, so joining the atoms
// yields the original text byte for byte.
func splitToAtoms(text string, maxLen int, seps []string) []string {
	if len(text) <= maxLen {
		return []string{text}
	}
	if len(seps) == 0 {
		// No boundary found at any priority; hard-cut.
		var parts []string
		for len(text) > maxLen {
			parts = append(parts, text[:maxLen])
			text = text[maxLen:]
		}
		if text != "" {
			parts = append(parts, text)
		}
		return parts
	}

	sep := seps[0]
	pieces := splitKeepingSeparator(text, sep)
	if len(pieces) == 1 {
		return splitToAtoms(text, maxLen, seps[1:])
	}

	var atoms []string
	for _, piece := range pieces {
		atoms = append(atoms, splitToAtoms(piece, maxLen, seps[1:])...)
	}
	return atoms
}

// splitKeepingSeparator splits text on sep, attaching the separator to
// the start of the following piece.
func splitKeepingSeparator(text, sep string) []string {
	var pieces []string
	for {
		// Search past position 0 so a leading separator does not
		// produce an empty piece.
		idx := strings.Index(text[1:], sep)
		if idx < 0 {
			pieces = append(pieces, text)
			return pieces
		}
		idx++
		pieces = append(pieces, text[:idx])
		text = text[idx:]
	}
}
