package docbrief

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/docbrief/ai/mock"
	"github.com/poiesic/docbrief/core"
	"github.com/poiesic/docbrief/lifecycle"
	badgerstore "github.com/poiesic/docbrief/storage/badger"
)

func newTestService(t *testing.T, opts ...ServiceOption) *Service {
	t.Helper()

	options := &serviceOptions{}
	for _, opt := range opts {
		opt(options)
	}

	store, err := badgerstore.NewMemoryStore()
	require.NoError(t, err)

	service, err := newService(store, mock.NewMockProvider(), options)
	require.NoError(t, err)
	t.Cleanup(func() { _ = service.Close() })
	return service
}

func ingestAndWait(t *testing.T, service *Service, tenantID, text string) *core.Task {
	t.Helper()

	doc := core.Document{Content: []byte(text), Kind: core.ContentKindText, SourceRef: "doc.txt"}
	task, events, cancel, err := service.Ingest(context.Background(), tenantID, doc)
	require.NoError(t, err)
	defer cancel()

	terminals := 0
	timeout := time.After(10 * time.Second)
	for terminals < 2 {
		select {
		case event, ok := <-events:
			require.True(t, ok, "progress stream closed early")
			if event.Terminal() {
				require.Equal(t, core.EventResult, event.Kind, "stage %s failed: %s", event.Stage, event.Message)
				terminals++
			}
		case <-timeout:
			t.Fatal("timed out waiting for ingestion")
		}
	}
	return task
}

func TestServiceIngestAndAnswer(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	ingestAndWait(t, service, "tenant-a",
		"The docbrief service stores document chunks per tenant and answers questions from them.")

	got, err := service.Answer(ctx, "tenant-a", "What does the service do?")
	require.NoError(t, err)
	// Mock completer returns a canned response; the answer is grounded.
	assert.Equal(t, "mock completion", got.Text)
	assert.NotEmpty(t, got.Sources)
}

func TestServiceAnswerWithoutDocuments(t *testing.T) {
	service := newTestService(t)

	got, err := service.Answer(context.Background(), "tenant-missing", "Anything?")
	require.NoError(t, err)
	assert.Contains(t, got.Text, "expired or no documents")
	assert.Empty(t, got.Sources)
}

func TestServiceExtraSubscriber(t *testing.T) {
	service := newTestService(t)

	doc := core.Document{Content: []byte("some document text"), Kind: core.ContentKindText}
	task, events, cancel, err := service.Ingest(context.Background(), "tenant-a", doc)
	require.NoError(t, err)
	defer cancel()

	// A second subscription is independent of the primary stream.
	extra, extraCancel := service.Subscribe(task.Id)
	defer extraCancel()
	assert.NotNil(t, extra)

	terminals := 0
	timeout := time.After(10 * time.Second)
	for terminals < 2 {
		select {
		case event := <-events:
			if event.Terminal() {
				terminals++
			}
		case <-timeout:
			t.Fatal("timed out")
		}
	}
}

func TestServiceScheduledCleanup(t *testing.T) {
	service := newTestService(t,
		WithLifecycleOptions(lifecycle.WithRetention(30*time.Millisecond)))
	ctx := context.Background()

	// Successful ingestion starts the retention clock on its own.
	ingestAndWait(t, service, "tenant-a", "ephemeral session content")

	assert.Eventually(t, func() bool {
		got, err := service.Answer(ctx, "tenant-a", "Still there?")
		return err == nil && got.Sources == nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestServiceSweep(t *testing.T) {
	store, err := badgerstore.NewMemoryStore()
	require.NoError(t, err)
	options := &serviceOptions{
		lifecycleOpts: []lifecycle.Option{lifecycle.WithRetention(10 * time.Millisecond)},
	}
	service, err := newService(store, mock.NewMockProvider(), options)
	require.NoError(t, err)
	t.Cleanup(func() { _ = service.Close() })
	ctx := context.Background()

	// Seed the collection directly so no one-shot deletion timer races the sweep.
	require.NoError(t, store.EnsureCollection(ctx, "tenant-a"))
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 1, service.Sweep(ctx))
	assert.Equal(t, 0, service.Sweep(ctx))
}

func TestServiceCloseIsFinal(t *testing.T) {
	store, err := badgerstore.NewMemoryStore()
	require.NoError(t, err)
	service, err := newService(store, mock.NewMockProvider(), &serviceOptions{})
	require.NoError(t, err)

	require.NoError(t, service.Close())

	_, _, _, err = service.Ingest(context.Background(), "tenant-a", core.Document{
		Content: []byte("x"), Kind: core.ContentKindText,
	})
	assert.Error(t, err, "ingest after close must fail")
}
