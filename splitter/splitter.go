// Package splitter cuts document text into overlapping windows for embedding.
//
// Splitting is deterministic: the same text and parameters always produce the
// same spans, which downstream code relies on for content-derived chunk IDs.
// Window ends prefer natural boundaries (paragraph break, newline, sentence
// end, space) near the size limit over hard mid-word cuts.
package splitter

import (
	"fmt"

	"github.com/poiesic/docbrief/core"
)

// Span is one window of the source text.
type Span struct {
	Text  string
	Start int // Rune offset of the span within the source text
}

// Splitter produces contiguous overlapping spans of fixed maximum size.
type Splitter struct {
	chunkSize int
	overlap   int
}

// New creates a Splitter.
// Returns core.ErrConfiguration unless 0 <= overlap < chunkSize.
func New(chunkSize, overlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", core.ErrConfiguration, chunkSize)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: overlap cannot be negative, got %d", core.ErrConfiguration, overlap)
	}
	if overlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than chunk size %d", core.ErrConfiguration, overlap, chunkSize)
	}
	return &Splitter{chunkSize: chunkSize, overlap: overlap}, nil
}

// ChunkSize returns the configured maximum span size in runes.
func (s *Splitter) ChunkSize() int { return s.chunkSize }

// Overlap returns the configured overlap in runes.
func (s *Splitter) Overlap() int { return s.overlap }

// Split cuts text into spans. Span i+1 starts overlap runes before the end of
// span i, adjusted to the nearest natural boundary. Empty input yields no
// spans.
func (s *Splitter) Split(text string) []Span {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= s.chunkSize {
		return []Span{{Text: text, Start: 0}}
	}

	var spans []Span
	pos := 0
	for pos < len(runes) {
		end := pos + s.chunkSize
		if end >= len(runes) {
			spans = append(spans, Span{Text: string(runes[pos:]), Start: pos})
			break
		}

		end = snapToBoundary(runes, pos, end)
		spans = append(spans, Span{Text: string(runes[pos:end]), Start: pos})

		next := end - s.overlap
		// Overlap < chunkSize guarantees forward progress on full windows;
		// aggressive boundary snapping must not stall the walk either.
		if next <= pos {
			next = pos + 1
		}
		pos = next
	}

	return spans
}

// boundary preference, strongest first
var boundaryMarks = []string{"\n\n", "\n", ". ", "! ", "? ", " "}

// snapToBoundary moves end backward to the closest natural boundary, looking
// at most a fifth of the window back. Returns the original end when no
// boundary is found in that range.
func snapToBoundary(runes []rune, start, end int) int {
	limit := end - (end-start)/5
	if limit <= start {
		return end
	}

	for _, mark := range boundaryMarks {
		m := []rune(mark)
		for i := end - len(m); i >= limit; i-- {
			if matchAt(runes, i, m) {
				return i + len(m)
			}
		}
	}
	return end
}

func matchAt(runes []rune, at int, mark []rune) bool {
	if at < 0 || at+len(mark) > len(runes) {
		return false
	}
	for j, r := range mark {
		if runes[at+j] != r {
			return false
		}
	}
	return true
}
