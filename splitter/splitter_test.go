package splitter

import (
	"strings"
	"testing"

	"github.com/poiesic/docbrief/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name      string
		chunkSize int
		overlap   int
		wantErr   bool
	}{
		{name: "valid", chunkSize: 500, overlap: 150, wantErr: false},
		{name: "zero overlap", chunkSize: 100, overlap: 0, wantErr: false},
		{name: "overlap equals chunk size", chunkSize: 100, overlap: 100, wantErr: true},
		{name: "overlap exceeds chunk size", chunkSize: 100, overlap: 150, wantErr: true},
		{name: "zero chunk size", chunkSize: 0, overlap: 0, wantErr: true},
		{name: "negative overlap", chunkSize: 100, overlap: -1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.chunkSize, tt.overlap)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, core.ErrConfiguration)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestSplitEmptyInput(t *testing.T) {
	s, err := New(500, 150)
	require.NoError(t, err)

	assert.Empty(t, s.Split(""))
}

func TestSplitShortInput(t *testing.T) {
	s, err := New(500, 150)
	require.NoError(t, err)

	spans := s.Split("short document")
	require.Len(t, spans, 1)
	assert.Equal(t, "short document", spans[0].Text)
	assert.Equal(t, 0, spans[0].Start)
}

func TestSplitDeterminism(t *testing.T) {
	s, err := New(500, 150)
	require.NoError(t, err)

	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 100)
	first := s.Split(text)
	second := s.Split(text)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Text, second[i].Text, "span %d text differs", i)
		assert.Equal(t, first[i].Start, second[i].Start, "span %d start differs", i)
	}
}

func TestSplitCoversWholeText(t *testing.T) {
	s, err := New(200, 50)
	require.NoError(t, err)

	text := strings.Repeat("Sentences pile up here. More words follow on. ", 40)
	spans := s.Split(text)
	require.NotEmpty(t, spans)

	runes := []rune(text)
	assert.Equal(t, 0, spans[0].Start)
	last := spans[len(spans)-1]
	assert.Equal(t, string(runes[last.Start:]), last.Text, "last span must reach the end of the text")
}

func TestSplitOverlapInvariant(t *testing.T) {
	const chunkSize, overlap = 200, 50
	s, err := New(chunkSize, overlap)
	require.NoError(t, err)

	text := strings.Repeat("Alpha beta gamma delta epsilon zeta eta theta. ", 50)
	spans := s.Split(text)
	require.Greater(t, len(spans), 2)

	for i := 0; i < len(spans)-1; i++ {
		end := spans[i].Start + len([]rune(spans[i].Text))
		got := end - spans[i+1].Start
		// Boundary snapping may shift the cut; the overlap must stay near the
		// configured value and consecutive spans must stay contiguous.
		assert.GreaterOrEqual(t, got, 1, "spans %d and %d do not overlap", i, i+1)
		assert.LessOrEqual(t, got, overlap, "overlap between spans %d and %d exceeds configuration", i, i+1)
		assert.Greater(t, spans[i+1].Start, spans[i].Start, "spans must advance")
	}
}

func TestSplitPrefersParagraphBoundaries(t *testing.T) {
	s, err := New(100, 20)
	require.NoError(t, err)

	para := strings.Repeat("word ", 17) // ~85 runes
	text := para + "\n\n" + para + "\n\n" + para
	spans := s.Split(text)
	require.Greater(t, len(spans), 1)

	// First cut should land right after the paragraph break, not mid-word.
	assert.True(t, strings.HasSuffix(spans[0].Text, "\n\n"),
		"first span %q should end at the paragraph boundary", spans[0].Text)
}

func TestSplitMaxSpanSize(t *testing.T) {
	s, err := New(120, 30)
	require.NoError(t, err)

	text := strings.Repeat("x", 1000) // no boundaries at all
	for i, span := range s.Split(text) {
		assert.LessOrEqual(t, len([]rune(span.Text)), 120, "span %d exceeds chunk size", i)
	}
}
