// -----------------------------------------------------------------------
// Parser Service - Extract normalized plain text from raw documents
// Handles PDF, HTML and plain text formats
// -----------------------------------------------------------------------

package parser

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lexa/internal/common"
)

// Format identifies the detected raw document format.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatHTML Format = "html"
	FormatText Format = "text"
)

// ErrTextTooShort is returned when the extracted text is below the
// configured minimum and the document cannot be meaningfully indexed.
var ErrTextTooShort = fmt.Errorf("extracted text below minimum length")

// Result holds the outcome of parsing a raw document.
type Result struct {
	Format Format
	Title  string
	Text   string
}

// Service detects the format of raw document bytes and extracts
// normalized plain text from them.
type Service struct {
	config *common.IngestConfig
	logger arbor.ILogger
	pdf    *pdfExtractor
}

// NewService creates a new parser service
func NewService(config *common.IngestConfig, logger arbor.ILogger) *Service {
	return &Service{
		config: config,
		logger: logger,
		pdf:    newPDFExtractor(logger),
	}
}

// Parse extracts text from raw content. The returned text is normalized
// (LF line endings, collapsed blank runs, trimmed). ErrTextTooShort is
// returned when the result is shorter than the configured minimum.
func (s *Service) Parse(ctx context.Context, content []byte) (*Result, error) {
	format := DetectFormat(content)

	var (
		text  string
		title string
		err   error
	)

	switch format {
	case FormatPDF:
		text, err = s.pdf.extractText(ctx, content)
		if err != nil {
			return nil, fmt.Errorf("pdf extraction failed: %w", err)
		}
	case FormatHTML:
		text, title, err = s.parseHTML(string(content))
		if err != nil {
			return nil, fmt.Errorf("html parsing failed: %w", err)
		}
	default:
		text = string(content)
	}

	text = NormalizeText(text)

	s.logger.Debug().
		Str("format", string(format)).
		Int("raw_bytes", len(content)).
		Int("text_length", len(text)).
		Msg("Parsed document")

	if len(text) < s.config.MinTextLength {
		return nil, fmt.Errorf("%w: got %d characters, need %d",
			ErrTextTooShort, len(text), s.config.MinTextLength)
	}

	return &Result{
		Format: format,
		Title:  title,
		Text:   text,
	}, nil
}

// DetectFormat inspects raw content and classifies it as PDF, HTML or
// plain text. PDF detection uses the file magic; HTML detection looks
// for a document-level tag near the start.
func DetectFormat(content []byte) Format {
	if bytes.HasPrefix(content, []byte("%PDF")) {
		return FormatPDF
	}

	head := content
	if len(head) > 1024 {
		head = head[:1024]
	}
	lower := bytes.ToLower(bytes.TrimSpace(head))
	if bytes.HasPrefix(lower, []byte("<!doctype html")) ||
		bytes.HasPrefix(lower, []byte("<html")) ||
		bytes.Contains(lower, []byte("<body")) {
		return FormatHTML
	}

	return FormatText
}

var blankRunPattern = regexp.MustCompile(`\n{3,}`)

// NormalizeText converts line endings to LF, trims trailing whitespace
// from each line, collapses runs of three or more newlines down to two,
// and trims the result.
func NormalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	text = strings.Join(lines, "\n")

	text = blankRunPattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
