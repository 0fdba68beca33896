package answer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/docbrief/ai/mock"
	"github.com/poiesic/docbrief/core"
	badgerstore "github.com/poiesic/docbrief/storage/badger"
)

func newTestAnswerer(t *testing.T) (*Answerer, *badgerstore.Store, *mock.MockProvider) {
	t.Helper()

	store, err := badgerstore.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	provider := mock.NewMockProvider().(*mock.MockProvider)

	a, err := New(store, provider)
	require.NoError(t, err)
	return a, store, provider
}

func seedChunks(t *testing.T, store *badgerstore.Store, tenantID string, texts ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.EnsureCollection(ctx, tenantID))

	records := make([]core.ChunkRecord, len(texts))
	for i, text := range texts {
		vector := make([]float32, 3)
		vector[i%3] = 1
		records[i] = core.ChunkRecord{
			Chunk: core.Chunk{
				Id:        core.ChunkIDFrom(tenantID, "doc.txt", i*100, i),
				TenantId:  tenantID,
				SourceRef: "doc.txt",
				Text:      text,
				Start:     i * 100,
				Ordinal:   i,
			},
			Vector: vector,
		}
	}
	_, err := store.Upsert(ctx, tenantID, records)
	require.NoError(t, err)
}

func TestAnswerValidation(t *testing.T) {
	a, _, _ := newTestAnswerer(t)
	ctx := context.Background()

	_, err := a.Answer(ctx, "", "what is this about?")
	assert.ErrorIs(t, err, core.ErrEmptyTenant)

	_, err = a.Answer(ctx, "tenant-a", "   ")
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestAnswerMissingCollection(t *testing.T) {
	a, _, _ := newTestAnswerer(t)

	got, err := a.Answer(context.Background(), "tenant-a", "anything?")
	require.NoError(t, err)
	assert.Equal(t, msgNoCollection, got.Text)
	assert.Empty(t, got.Sources)
}

func TestAnswerGrounded(t *testing.T) {
	a, store, provider := newTestAnswerer(t)
	seedChunks(t, store, "tenant-a",
		"The project deadline is March 14.",
		"The team consists of five engineers.",
		"Budget was approved in January.")

	provider.GetMockEmbedder().EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return []float32{1, 0, 0}, nil
	}
	var capturedPrompt string
	provider.GetMockCompleter().CompleteFunc = func(ctx context.Context, prompt string) (string, error) {
		capturedPrompt = prompt
		return "The deadline is March 14.", nil
	}

	got, err := a.Answer(context.Background(), "tenant-a", "When is the deadline?")
	require.NoError(t, err)
	assert.Equal(t, "The deadline is March 14.", got.Text)
	assert.NotEmpty(t, got.Sources)

	// The prompt carries the retrieved chunks and the question.
	assert.Contains(t, capturedPrompt, "The project deadline is March 14.")
	assert.Contains(t, capturedPrompt, "When is the deadline?")
}

func TestAnswerRefusalHasNoSources(t *testing.T) {
	a, store, provider := newTestAnswerer(t)
	seedChunks(t, store, "tenant-a", "Unrelated chunk about gardening.")

	provider.GetMockCompleter().CompleteFunc = func(ctx context.Context, prompt string) (string, error) {
		return "  " + RefusalPhrase + "\n", nil
	}

	got, err := a.Answer(context.Background(), "tenant-a", "What is the capital of France?")
	require.NoError(t, err)
	assert.Equal(t, RefusalPhrase, got.Text)
	assert.Empty(t, got.Sources)
}

func TestAnswerDeduplicatesSources(t *testing.T) {
	a, store, provider := newTestAnswerer(t)
	// Two chunks with identical text (overlap regions can repeat content).
	seedChunks(t, store, "tenant-a",
		"Shared overlapping sentence.",
		"Shared overlapping sentence.",
		"A different sentence.")

	provider.GetMockCompleter().CompleteFunc = func(ctx context.Context, prompt string) (string, error) {
		return "An answer.", nil
	}

	got, err := a.Answer(context.Background(), "tenant-a", "What do the documents say?")
	require.NoError(t, err)

	seen := make(map[string]int)
	for _, source := range got.Sources {
		seen[source]++
	}
	for source, count := range seen {
		assert.Equal(t, 1, count, "source repeated: %q", source)
	}
}

func TestAnswerInternalErrorDegrades(t *testing.T) {
	a, store, provider := newTestAnswerer(t)
	seedChunks(t, store, "tenant-a", "Some content.")

	provider.GetMockCompleter().CompleteFunc = func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("model unavailable")
	}

	got, err := a.Answer(context.Background(), "tenant-a", "A question?")
	require.NoError(t, err)
	assert.Equal(t, msgInternalError, got.Text)
	assert.Empty(t, got.Sources)

	provider.GetMockEmbedder().EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("embedder unavailable")
	}
	got, err = a.Answer(context.Background(), "tenant-a", "A question?")
	require.NoError(t, err)
	assert.Equal(t, msgInternalError, got.Text)
}

func TestAnswerRespectsTopK(t *testing.T) {
	store, err := badgerstore.NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()
	provider := mock.NewMockProvider().(*mock.MockProvider)

	a, err := New(store, provider, WithRetrieval(2, 5, 1.0))
	require.NoError(t, err)

	texts := make([]string, 6)
	for i := range texts {
		texts[i] = strings.Repeat("chunk ", i+1)
	}
	seedChunks(t, store, "tenant-a", texts...)

	provider.GetMockCompleter().CompleteFunc = func(ctx context.Context, prompt string) (string, error) {
		return "An answer.", nil
	}

	got, err := a.Answer(context.Background(), "tenant-a", "Anything?")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(got.Sources), 2)
}

func TestWithRetrievalValidation(t *testing.T) {
	store, err := badgerstore.NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()
	provider := mock.NewMockProvider()

	_, err = New(store, provider, WithRetrieval(0, 10, 0.7))
	assert.ErrorIs(t, err, core.ErrConfiguration)

	_, err = New(store, provider, WithRetrieval(5, 3, 0.7))
	assert.ErrorIs(t, err, core.ErrConfiguration)

	_, err = New(store, provider, WithRetrieval(3, 10, 1.5))
	assert.ErrorIs(t, err, core.ErrConfiguration)
}
