// Package extract converts uploaded documents into plain text.
//
// Plain-text and markdown uploads pass through unchanged. PDF uploads are
// parsed with pdfcpu: each page's decoded content stream is scanned for text
// operators. The scan covers the common Tj/TJ/quote operators and is not a
// full layout engine; scanned or image-only PDFs yield empty text.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/poiesic/docbrief/core"
)

// Extractor converts a document's raw content into plain text.
// Implementations must be thread-safe for concurrent use.
type Extractor interface {
	// Extract returns the document's plain text.
	// Returns core.ErrUnsupportedType for unrecognized content kinds.
	Extract(doc core.Document) (string, error)
}

// TextExtractor is the default Extractor implementation.
type TextExtractor struct{}

var _ Extractor = (*TextExtractor)(nil)

// New creates a TextExtractor.
func New() *TextExtractor {
	return &TextExtractor{}
}

// Extract returns the plain text of the document according to its declared kind.
func (e *TextExtractor) Extract(doc core.Document) (string, error) {
	switch doc.Kind {
	case core.ContentKindText, core.ContentKindMarkdown:
		return string(doc.Content), nil
	case core.ContentKindPDF:
		return extractPDF(doc.Content)
	default:
		return "", fmt.Errorf("%w: %q", core.ErrUnsupportedType, doc.Kind)
	}
}

// extractPDF pulls text out of every page of a PDF.
// Pages are separated by blank lines, mirroring how multi-page loaders
// concatenate page content before chunking.
func extractPDF(content []byte) (string, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(content), conf)
	if err != nil {
		return "", fmt.Errorf("%w: reading pdf: %w", core.ErrProcessing, err)
	}

	var pages []string
	for pageNr := 1; pageNr <= pdfCtx.PageCount; pageNr++ {
		r, err := pdfcpu.ExtractPageContent(pdfCtx, pageNr)
		if err != nil {
			return "", fmt.Errorf("%w: extracting page %d: %w", core.ErrProcessing, pageNr, err)
		}
		if r == nil {
			continue
		}
		stream, err := io.ReadAll(r)
		if err != nil {
			return "", fmt.Errorf("%w: reading page %d content: %w", core.ErrProcessing, pageNr, err)
		}
		text := textFromContentStream(stream)
		if strings.TrimSpace(text) != "" {
			pages = append(pages, strings.TrimSpace(text))
		}
	}

	return strings.Join(pages, "\n\n"), nil
}
