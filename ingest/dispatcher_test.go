package ingest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/docbrief/ai"
	"github.com/poiesic/docbrief/ai/mock"
	"github.com/poiesic/docbrief/core"
	"github.com/poiesic/docbrief/progress"
	badgerstore "github.com/poiesic/docbrief/storage/badger"
)

type fixture struct {
	dispatcher *Dispatcher
	broker     *progress.Broker
	store      *badgerstore.Store
	provider   ai.AIProvider
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	store, err := badgerstore.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	broker := progress.NewBroker()
	t.Cleanup(broker.Close)

	provider := mock.NewMockProvider()

	dispatcher, err := New(store, broker, provider, opts...)
	require.NoError(t, err)
	t.Cleanup(dispatcher.Release)

	return &fixture{dispatcher: dispatcher, broker: broker, store: store, provider: provider}
}

func (f *fixture) mockEmbedder() *mock.MockEmbedder {
	return f.provider.(*mock.MockProvider).GetMockEmbedder()
}

func (f *fixture) mockCompleter() *mock.MockCompleter {
	return f.provider.(*mock.MockProvider).GetMockCompleter()
}

// awaitTerminals reads the stream until both stages have terminated.
func awaitTerminals(t *testing.T, ch <-chan core.ProgressEvent) map[core.Stage]core.ProgressEvent {
	t.Helper()

	terminals := make(map[core.Stage]core.ProgressEvent)
	timeout := time.After(10 * time.Second)
	for len(terminals) < 2 {
		select {
		case event, ok := <-ch:
			require.True(t, ok, "progress channel closed early")
			if event.Terminal() {
				terminals[event.Stage] = event
			}
		case <-timeout:
			t.Fatalf("timed out waiting for terminal events, have %d", len(terminals))
		}
	}
	return terminals
}

func textDoc(text string) core.Document {
	return core.Document{Content: []byte(text), Kind: core.ContentKindText, SourceRef: "notes.txt"}
}

func TestDispatchValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, _, err := f.dispatcher.Dispatch(ctx, "", textDoc("hello"))
	assert.ErrorIs(t, err, core.ErrEmptyTenant)

	_, _, _, err = f.dispatcher.Dispatch(ctx, "tenant-a", core.Document{Kind: core.ContentKindText})
	assert.ErrorIs(t, err, core.ErrEmptyDocument)

	_, _, _, err = f.dispatcher.Dispatch(ctx, "tenant-a", core.Document{Content: []byte("x"), Kind: "docx"})
	assert.ErrorIs(t, err, core.ErrUnsupportedType)
}

func TestDispatchRunsBothJobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 40)
	task, events, cancel, err := f.dispatcher.Dispatch(ctx, "tenant-a", textDoc(text))
	require.NoError(t, err)
	defer cancel()
	require.NotEmpty(t, task.Id)

	terminals := awaitTerminals(t, events)

	index := terminals[core.StageIndex]
	assert.Equal(t, core.EventResult, index.Kind)
	fullText, ok := index.Payload.(string)
	require.True(t, ok, "index payload should be the extracted text")
	assert.Equal(t, text, fullText)

	summary := terminals[core.StageSummary]
	assert.Equal(t, core.EventResult, summary.Kind)
	_, ok = summary.Payload.(core.Summary)
	assert.True(t, ok, "summary payload should be a core.Summary")

	// Chunks landed in storage.
	ids, err := f.store.ExistingIDs(ctx, "tenant-a")
	require.NoError(t, err)
	assert.NotEmpty(t, ids)
}

func TestDispatchIdempotentReingest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	text := strings.Repeat("Same document, same chunks, same ids. ", 40)

	dispatchAndWait := func() int {
		_, events, cancel, err := f.dispatcher.Dispatch(ctx, "tenant-a", textDoc(text))
		require.NoError(t, err)
		defer cancel()
		awaitTerminals(t, events)

		ids, err := f.store.ExistingIDs(ctx, "tenant-a")
		require.NoError(t, err)
		return len(ids)
	}

	first := dispatchAndWait()
	assert.Greater(t, first, 0)
	embeds := f.mockEmbedder().CallCount()

	second := dispatchAndWait()
	assert.Equal(t, first, second, "re-ingest must not add chunks")
	assert.Equal(t, embeds, f.mockEmbedder().CallCount(), "re-ingest must not call the embedder")
}

func TestDispatchTooLargeFailsBothJobs(t *testing.T) {
	f := newFixture(t, WithMaxDocumentTokens(5))
	ctx := context.Background()

	_, events, cancel, err := f.dispatcher.Dispatch(ctx, "tenant-a", textDoc(strings.Repeat("word ", 100)))
	require.NoError(t, err)
	defer cancel()

	terminals := awaitTerminals(t, events)

	for _, stage := range []core.Stage{core.StageIndex, core.StageSummary} {
		event := terminals[stage]
		assert.Equal(t, core.EventError, event.Kind, "stage %s", stage)
		assert.Equal(t, msgTooLarge, event.Message)
	}

	// Nothing was stored for the refused document.
	exists, err := f.store.CollectionExists(ctx, "tenant-a")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDispatchIndexedHook(t *testing.T) {
	indexed := make(chan string, 1)
	f := newFixture(t, WithIndexedHook(func(tenantID string) { indexed <- tenantID }))

	_, events, cancel, err := f.dispatcher.Dispatch(context.Background(), "tenant-a", textDoc("hook me"))
	require.NoError(t, err)
	defer cancel()
	awaitTerminals(t, events)

	select {
	case tenantID := <-indexed:
		assert.Equal(t, "tenant-a", tenantID)
	case <-time.After(time.Second):
		t.Fatal("indexed hook was not called")
	}
}

func TestDispatchJobTimeoutPublishesErrors(t *testing.T) {
	f := newFixture(t, WithJobTimeout(time.Millisecond))
	ctx := context.Background()

	// Both model calls hang until the job deadline cancels them.
	f.mockEmbedder().EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	f.mockCompleter().CompleteFunc = func(ctx context.Context, prompt string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}

	_, events, cancel, err := f.dispatcher.Dispatch(ctx, "tenant-a", textDoc("document that outlives its deadline"))
	require.NoError(t, err)
	defer cancel()

	terminals := awaitTerminals(t, events)

	// A timed-out job must still terminate its stage with an error event.
	for _, stage := range []core.Stage{core.StageIndex, core.StageSummary} {
		assert.Equal(t, core.EventError, terminals[stage].Kind, "stage %s", stage)
	}
}

func TestDispatchSiblingIndependence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Summarization fails, indexing succeeds.
	f.mockCompleter().CompleteFunc = func(ctx context.Context, prompt string) (string, error) {
		return "", context.DeadlineExceeded
	}

	_, events, cancel, err := f.dispatcher.Dispatch(ctx, "tenant-a", textDoc("short but real document text"))
	require.NoError(t, err)
	defer cancel()

	terminals := awaitTerminals(t, events)

	assert.Equal(t, core.EventResult, terminals[core.StageIndex].Kind)
	assert.Equal(t, core.EventError, terminals[core.StageSummary].Kind)

	ids, err := f.store.ExistingIDs(ctx, "tenant-a")
	require.NoError(t, err)
	assert.NotEmpty(t, ids)
}

func TestDispatchDefaultsSourceRef(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, events, cancel, err := f.dispatcher.Dispatch(ctx, "tenant-a", core.Document{
		Content: []byte("document without a filename"),
		Kind:    core.ContentKindText,
	})
	require.NoError(t, err)
	defer cancel()
	awaitTerminals(t, events)

	results, err := f.store.Query(ctx, "tenant-a", []float32{1}, 1, 1, 1.0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "upload.txt", results[0].Chunk.SourceRef)
}

func TestDispatchStringifiesMetadata(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc := textDoc("a document carrying caller metadata")
	doc.Metadata = map[string]any{"page_count": 3, "author": "mira"}

	_, events, cancel, err := f.dispatcher.Dispatch(ctx, "tenant-a", doc)
	require.NoError(t, err)
	defer cancel()
	awaitTerminals(t, events)

	ids, err := f.store.ExistingIDs(ctx, "tenant-a")
	require.NoError(t, err)
	assert.NotEmpty(t, ids, "indexing should succeed with non-string metadata values")
}

func TestNewValidatesOptions(t *testing.T) {
	store, err := badgerstore.NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()
	broker := progress.NewBroker()
	defer broker.Close()
	provider := mock.NewMockProvider()

	_, err = New(nil, broker, provider)
	assert.ErrorIs(t, err, core.ErrConfiguration)

	_, err = New(store, broker, provider, WithChunking(100, 200))
	assert.ErrorIs(t, err, core.ErrConfiguration)

	_, err = New(store, broker, provider, WithJobTimeout(0))
	assert.ErrorIs(t, err, core.ErrConfiguration)
}
