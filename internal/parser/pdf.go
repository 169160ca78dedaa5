package parser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"
)

// pdfExtractor wraps pdfcpu text extraction. pdfcpu works on files, so
// content is staged through a temp directory.
type pdfExtractor struct {
	logger  arbor.ILogger
	tempDir string
}

func newPDFExtractor(logger arbor.ILogger) *pdfExtractor {
	tempDir := filepath.Join(os.TempDir(), "lexa-pdf")
	os.MkdirAll(tempDir, 0755)

	return &pdfExtractor{
		logger:  logger,
		tempDir: tempDir,
	}
}

// stage writes PDF bytes into a fresh per-extraction directory so
// concurrent worker lanes never share staging paths. The caller removes
// the directory when extraction finishes.
func (e *pdfExtractor) stage(content []byte) (workDir, pdfPath string, err error) {
	workDir, err = os.MkdirTemp(e.tempDir, "extract_")
	if err != nil {
		return "", "", fmt.Errorf("failed to create staging dir: %w", err)
	}
	pdfPath = filepath.Join(workDir, "input.pdf")
	if err := os.WriteFile(pdfPath, content, 0644); err != nil {
		os.RemoveAll(workDir)
		return "", "", fmt.Errorf("failed to write temp PDF file: %w", err)
	}
	return workDir, pdfPath, nil
}

// extractText extracts text from PDF bytes, concatenating pages in order
// with page markers between them.
func (e *pdfExtractor) extractText(ctx context.Context, content []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	workDir, tempFile, err := e.stage(content)
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(workDir)

	conf := model.NewDefaultConfiguration()
	pdfCtx, err := api.ReadContextFile(tempFile)
	if err != nil {
		return "", fmt.Errorf("failed to read PDF context: %w", err)
	}
	pageCount := pdfCtx.PageCount

	outDir := filepath.Join(workDir, "pages")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create extraction dir: %w", err)
	}

	if err := api.ExtractContentFile(tempFile, outDir, nil, conf); err != nil {
		return "", fmt.Errorf("failed to extract PDF content: %w", err)
	}

	pageTexts := make(map[int]string)
	files, _ := os.ReadDir(outDir)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(outDir, file.Name()))
		if err != nil {
			continue
		}
		var pageNum int
		if _, err := fmt.Sscanf(file.Name(), "Content_page_%d", &pageNum); err == nil {
			pageTexts[pageNum] = string(data)
		} else if _, err := fmt.Sscanf(file.Name(), "page_%d", &pageNum); err == nil {
			pageTexts[pageNum] = string(data)
		}
	}

	var builder strings.Builder
	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		text, ok := pageTexts[pageNum]
		if !ok || text == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString(fmt.Sprintf("\n\n--- Page %d ---\n\n", pageNum))
		}
		builder.WriteString(text)
	}

	e.logger.Debug().
		Int("page_count", pageCount).
		Int("pages_with_text", len(pageTexts)).
		Msg("Extracted PDF text")

	return builder.String(), nil
}
