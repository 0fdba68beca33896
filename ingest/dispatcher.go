// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package ingest orchestrates asynchronous document processing.
//
// Dispatching a document starts two independent jobs under one task id: the
// indexing job (extract, split, embed, upsert) and the summarization job.
// Each job reports its lifecycle through the progress broker and terminates
// with either a result or a user-facing error event. A failure in one job
// never cancels its sibling.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/docbrief/ai"
	"github.com/poiesic/docbrief/core"
	"github.com/poiesic/docbrief/extract"
	"github.com/poiesic/docbrief/progress"
	"github.com/poiesic/docbrief/splitter"
	"github.com/poiesic/docbrief/storage"
	"github.com/poiesic/docbrief/summarize"
)

const (
	// defaultChunkSize and defaultChunkOverlap shape retrieval chunks.
	defaultChunkSize    = 500
	defaultChunkOverlap = 150

	// defaultMaxDocumentTokens is the ceiling above which both jobs refuse.
	defaultMaxDocumentTokens = 100_000

	// defaultJobTimeout bounds a single job including all model calls.
	defaultJobTimeout = 10 * time.Minute
)

// Status messages published while a job runs.
const (
	statusSplitting   = "splitting text"
	statusEmbedding   = "embedding chunks"
	statusSummarizing = "summarizing document"
)

// User-facing failure messages for known error classes.
const (
	msgTooLarge    = "The document is too large to process. Please upload a smaller document."
	msgUnsupported = "This document type is not supported. Please upload a PDF, text, or markdown file."
)

// Dispatcher runs the two ingestion jobs for each dispatched document.
type Dispatcher struct {
	store      storage.CollectionStore
	broker     *progress.Broker
	provider   ai.AIProvider
	extractor  extract.Extractor
	summarizer *summarize.Summarizer
	split      *splitter.Splitter

	indexPool   *ants.Pool
	summaryPool *ants.Pool

	maxDocumentTokens int
	jobTimeout        time.Duration
	onIndexed         func(tenantID string)
	logger            *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher) error

// WithChunking overrides the chunk size and overlap used for indexing.
func WithChunking(chunkSize, overlap int) Option {
	return func(d *Dispatcher) error {
		split, err := splitter.New(chunkSize, overlap)
		if err != nil {
			return err
		}
		d.split = split
		return nil
	}
}

// WithMaxDocumentTokens overrides the document token ceiling.
func WithMaxDocumentTokens(tokens int) Option {
	return func(d *Dispatcher) error {
		if tokens <= 0 {
			return fmt.Errorf("%w: token ceiling must be positive, got %d", core.ErrConfiguration, tokens)
		}
		d.maxDocumentTokens = tokens
		return nil
	}
}

// WithJobTimeout overrides the per-job deadline.
func WithJobTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: job timeout must be positive, got %v", core.ErrConfiguration, timeout)
		}
		d.jobTimeout = timeout
		return nil
	}
}

// WithPoolSize recreates both worker pools with the given size.
func WithPoolSize(size int) Option {
	return func(d *Dispatcher) error {
		if size < 1 {
			return fmt.Errorf("%w: pool size must be at least 1, got %d", core.ErrConfiguration, size)
		}

		if d.indexPool != nil {
			d.indexPool.Release()
		}
		if d.summaryPool != nil {
			d.summaryPool.Release()
		}

		indexPool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		summaryPool, err := ants.NewPool(size)
		if err != nil {
			indexPool.Release()
			return err
		}

		d.indexPool = indexPool
		d.summaryPool = summaryPool
		return nil
	}
}

// WithExtractor overrides the document text extractor.
func WithExtractor(extractor extract.Extractor) Option {
	return func(d *Dispatcher) error {
		if extractor == nil {
			return fmt.Errorf("%w: extractor cannot be nil", core.ErrConfiguration)
		}
		d.extractor = extractor
		return nil
	}
}

// WithIndexedHook registers a callback invoked with the tenant id after an
// indexing job completes successfully. Used to start the tenant's retention
// clock as soon as content lands.
func WithIndexedHook(hook func(tenantID string)) Option {
	return func(d *Dispatcher) error {
		if hook == nil {
			return fmt.Errorf("%w: indexed hook cannot be nil", core.ErrConfiguration)
		}
		d.onIndexed = hook
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) error {
		d.logger = logger
		return nil
	}
}

// New creates a Dispatcher.
func New(store storage.CollectionStore, broker *progress.Broker, provider ai.AIProvider, opts ...Option) (*Dispatcher, error) {
	if store == nil || broker == nil || provider == nil {
		return nil, fmt.Errorf("%w: store, broker, and provider are required", core.ErrConfiguration)
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	indexPool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}
	summaryPool, err := ants.NewPool(poolSize)
	if err != nil {
		indexPool.Release()
		return nil, err
	}

	split, err := splitter.New(defaultChunkSize, defaultChunkOverlap)
	if err != nil {
		indexPool.Release()
		summaryPool.Release()
		return nil, err
	}

	summarizer, err := summarize.New(provider.Completer(), summarize.WithMaxTokens(defaultMaxDocumentTokens))
	if err != nil {
		indexPool.Release()
		summaryPool.Release()
		return nil, err
	}

	d := &Dispatcher{
		store:             store,
		broker:            broker,
		provider:          provider,
		extractor:         extract.New(),
		summarizer:        summarizer,
		split:             split,
		indexPool:         indexPool,
		summaryPool:       summaryPool,
		maxDocumentTokens: defaultMaxDocumentTokens,
		jobTimeout:        defaultJobTimeout,
		logger:            slog.Default().With("component", "dispatcher"),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			d.Release()
			return nil, err
		}
	}
	return d, nil
}

// Dispatch validates the document and starts the indexing and summarization
// jobs. Validation failures are returned synchronously; everything after
// acceptance is reported through the returned event channel under the task's
// id. The subscription is created before the jobs are submitted so no event
// can be missed; the caller must invoke cancel once done with the stream.
func (d *Dispatcher) Dispatch(ctx context.Context, tenantID string, doc core.Document) (*core.Task, <-chan core.ProgressEvent, func(), error) {
	if err := core.ValidateTenantID(tenantID); err != nil {
		return nil, nil, nil, err
	}
	if err := core.ValidateDocument(&doc); err != nil {
		return nil, nil, nil, err
	}
	if doc.SourceRef == "" {
		doc.SourceRef = "upload." + string(doc.Kind)
	}

	task := &core.Task{
		Id:        uuid.NewString(),
		TenantId:  tenantID,
		CreatedAt: time.Now().UTC(),
	}
	d.logger.Info("dispatching document",
		"task_id", task.Id, "tenant", tenantID, "kind", doc.Kind, "source", doc.SourceRef)

	events, cancel := d.broker.Subscribe(task.Id)

	if err := d.indexPool.Submit(func() { d.runIndexJob(task, doc) }); err != nil {
		cancel()
		return nil, nil, nil, err
	}
	if err := d.summaryPool.Submit(func() { d.runSummaryJob(task, doc) }); err != nil {
		// The indexing job already runs; its sibling reports the failure.
		d.broker.Publish(core.ErrorEvent(task.Id, core.StageSummary, userMessage(core.StageSummary, err)))
	}

	return task, events, cancel, nil
}

// runIndexJob extracts, splits, embeds, and upserts the document's chunks.
// Chunks whose ids already exist in the tenant collection are not re-embedded.
// The terminal result payload is the full extracted text.
func (d *Dispatcher) runIndexJob(task *core.Task, doc core.Document) {
	ctx, cancel := context.WithTimeout(context.Background(), d.jobTimeout)
	defer cancel()

	d.broker.Publish(core.StatusEvent(task.Id, core.StageIndex, statusSplitting))

	text, err := d.extractAndCheck(doc)
	if err != nil {
		d.fail(task, core.StageIndex, err)
		return
	}

	spans := d.split.Split(text)
	chunks := make([]core.Chunk, len(spans))
	for i, span := range spans {
		chunks[i] = core.Chunk{
			Id:        core.ChunkIDFrom(task.TenantId, doc.SourceRef, span.Start, i),
			TenantId:  task.TenantId,
			SourceRef: doc.SourceRef,
			Text:      span.Text,
			Start:     span.Start,
			Ordinal:   i,
		}
	}

	if err := d.store.EnsureCollection(ctx, task.TenantId); err != nil {
		d.fail(task, core.StageIndex, err)
		return
	}

	existing, err := d.store.ExistingIDs(ctx, task.TenantId)
	if err != nil {
		d.fail(task, core.StageIndex, err)
		return
	}

	var fresh []core.Chunk
	for _, chunk := range chunks {
		if _, ok := existing[chunk.Id]; !ok {
			fresh = append(fresh, chunk)
		}
	}
	d.logger.Debug("computed chunk delta",
		"task_id", task.Id, "chunks", len(chunks), "new", len(fresh))

	if len(fresh) > 0 {
		d.broker.Publish(core.StatusEvent(task.Id, core.StageIndex, statusEmbedding))

		texts := make([]string, len(fresh))
		for i, chunk := range fresh {
			texts[i] = chunk.Text
		}
		vectors, err := d.provider.Embedder().EmbedTexts(ctx, texts)
		if err != nil {
			d.fail(task, core.StageIndex, fmt.Errorf("%w: embedding: %v", core.ErrProcessing, err))
			return
		}
		if len(vectors) != len(fresh) {
			d.fail(task, core.StageIndex, fmt.Errorf("%w: embedding returned %d vectors for %d chunks",
				core.ErrProcessing, len(vectors), len(fresh)))
			return
		}

		metadata := storage.CleanMetadata(doc.Metadata)
		if metadata == nil {
			metadata = make(map[string]string, 2)
		}
		metadata["source"] = doc.SourceRef
		metadata["kind"] = string(doc.Kind)

		records := make([]core.ChunkRecord, len(fresh))
		for i, chunk := range fresh {
			records[i] = core.ChunkRecord{
				Chunk:    chunk,
				Vector:   vectors[i],
				Metadata: metadata,
			}
		}
		if _, err := d.store.Upsert(ctx, task.TenantId, records); err != nil {
			d.fail(task, core.StageIndex, err)
			return
		}
	}

	d.broker.Publish(core.ResultEvent(task.Id, core.StageIndex, text))
	d.logger.Info("indexing complete", "task_id", task.Id, "chunks", len(chunks), "embedded", len(fresh))

	if d.onIndexed != nil {
		d.onIndexed(task.TenantId)
	}
}

// runSummaryJob extracts and summarizes the document.
// The terminal result payload is a core.Summary.
func (d *Dispatcher) runSummaryJob(task *core.Task, doc core.Document) {
	ctx, cancel := context.WithTimeout(context.Background(), d.jobTimeout)
	defer cancel()

	d.broker.Publish(core.StatusEvent(task.Id, core.StageSummary, statusSummarizing))

	text, err := d.extractAndCheck(doc)
	if err != nil {
		d.fail(task, core.StageSummary, err)
		return
	}

	summary, err := d.summarizer.Summarize(ctx, text)
	if err != nil {
		d.fail(task, core.StageSummary, err)
		return
	}

	d.broker.Publish(core.ResultEvent(task.Id, core.StageSummary, *summary))
	d.logger.Info("summarization complete", "task_id", task.Id, "title", summary.Title)
}

// extractAndCheck extracts the document text and enforces the token ceiling.
func (d *Dispatcher) extractAndCheck(doc core.Document) (string, error) {
	text, err := d.extractor.Extract(doc)
	if err != nil {
		return "", err
	}

	if tokens := d.provider.Completer().CountTokens(text); tokens > d.maxDocumentTokens {
		return "", fmt.Errorf("%w: %d tokens exceeds limit of %d",
			core.ErrDocumentTooLarge, tokens, d.maxDocumentTokens)
	}
	return text, nil
}

// fail logs the real error and publishes the user-facing terminal event.
func (d *Dispatcher) fail(task *core.Task, stage core.Stage, err error) {
	d.logger.Error("job failed", "task_id", task.Id, "stage", stage, "err", err)
	d.broker.Publish(core.ErrorEvent(task.Id, stage, userMessage(stage, err)))
}

// userMessage converts an internal error into text fit for end users.
// Known error classes get a fixed message; everything else gets a generic
// per-stage failure line so internals never leak into the progress stream.
func userMessage(stage core.Stage, err error) string {
	switch {
	case errors.Is(err, core.ErrDocumentTooLarge):
		return msgTooLarge
	case errors.Is(err, core.ErrUnsupportedType):
		return msgUnsupported
	}
	if stage == core.StageSummary {
		return "Document summarization failed. Please try uploading again."
	}
	return "Document indexing failed. Please try uploading again."
}

// Release shuts down the worker pools.
// The dispatcher should not be used after calling Release.
func (d *Dispatcher) Release() {
	if d.indexPool != nil {
		d.indexPool.Release()
	}
	if d.summaryPool != nil {
		d.summaryPool.Release()
	}
}
