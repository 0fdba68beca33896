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


package docbrief

import (
	"context"
	"log/slog"

	"github.com/poiesic/docbrief/ai"
	"github.com/poiesic/docbrief/ai/openai"
	"github.com/poiesic/docbrief/answer"
	"github.com/poiesic/docbrief/core"
	"github.com/poiesic/docbrief/ingest"
	"github.com/poiesic/docbrief/lifecycle"
	"github.com/poiesic/docbrief/progress"
	"github.com/poiesic/docbrief/storage"
	badgerstore "github.com/poiesic/docbrief/storage/badger"
)

// Service wires storage, AI services, and the processing pipeline into one
// document briefing service: upload documents, follow the processing
// progress, ask grounded questions, and let collections expire.
type Service struct {
	store      storage.CollectionStore
	broker     *progress.Broker
	provider   ai.AIProvider
	dispatcher *ingest.Dispatcher
	answerer   *answer.Answerer
	lifecycle  *lifecycle.Manager
	logger     *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	aiConfig       *ai.Config
	dispatcherOpts []ingest.Option
	answerOpts     []answer.Option
	lifecycleOpts  []lifecycle.Option
	startSweep     bool
}

// WithAIConfig sets the AI service configuration.
func WithAIConfig(config *ai.Config) ServiceOption {
	return func(o *serviceOptions) {
		o.aiConfig = config
	}
}

// WithDispatcherOptions forwards options to the ingestion dispatcher.
func WithDispatcherOptions(opts ...ingest.Option) ServiceOption {
	return func(o *serviceOptions) {
		o.dispatcherOpts = append(o.dispatcherOpts, opts...)
	}
}

// WithAnswerOptions forwards options to the answerer.
func WithAnswerOptions(opts ...answer.Option) ServiceOption {
	return func(o *serviceOptions) {
		o.answerOpts = append(o.answerOpts, opts...)
	}
}

// WithLifecycleOptions forwards options to the lifecycle manager.
func WithLifecycleOptions(opts ...lifecycle.Option) ServiceOption {
	return func(o *serviceOptions) {
		o.lifecycleOpts = append(o.lifecycleOpts, opts...)
	}
}

// WithRetentionSweep starts the periodic expired-collection sweep.
func WithRetentionSweep() ServiceOption {
	return func(o *serviceOptions) {
		o.startSweep = true
	}
}

// NewService opens a document briefing service backed by BadgerDB at filePath.
func NewService(filePath string, opts ...ServiceOption) (*Service, error) {
	options := &serviceOptions{
		aiConfig: ai.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(options)
	}

	store, err := badgerstore.NewStore(filePath)
	if err != nil {
		return nil, err
	}

	provider, err := openai.NewProvider(options.aiConfig)
	if err != nil {
		store.Close()
		return nil, err
	}

	return newService(store, provider, options)
}

// newService finishes assembly from an open store and provider.
// Split out so tests can inject in-memory and mock implementations.
func newService(store storage.CollectionStore, provider ai.AIProvider, options *serviceOptions) (*Service, error) {
	broker := progress.NewBroker()
	logger := slog.Default()

	manager, err := lifecycle.New(store, options.lifecycleOpts...)
	if err != nil {
		broker.Close()
		provider.Close()
		store.Close()
		return nil, err
	}

	// Indexed content starts the tenant's retention clock automatically.
	dispatcherOpts := append([]ingest.Option{
		ingest.WithIndexedHook(func(tenantID string) {
			if err := manager.Schedule(tenantID); err != nil {
				logger.Error("error scheduling collection cleanup", "tenant_id", tenantID, "err", err)
			}
		}),
	}, options.dispatcherOpts...)

	dispatcher, err := ingest.New(store, broker, provider, dispatcherOpts...)
	if err != nil {
		manager.Stop()
		broker.Close()
		provider.Close()
		store.Close()
		return nil, err
	}

	answerer, err := answer.New(store, provider, options.answerOpts...)
	if err != nil {
		dispatcher.Release()
		manager.Stop()
		broker.Close()
		provider.Close()
		store.Close()
		return nil, err
	}

	s := &Service{
		store:      store,
		broker:     broker,
		provider:   provider,
		dispatcher: dispatcher,
		answerer:   answerer,
		lifecycle:  manager,
		logger:     logger,
	}

	if options.startSweep {
		if err := manager.Start(); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// Ingest starts asynchronous indexing and summarization of a document for
// the tenant. The returned channel carries the progress of both jobs; each
// job ends with a result or error event. The caller must invoke cancel once
// done with the stream.
func (s *Service) Ingest(ctx context.Context, tenantID string, doc core.Document) (*core.Task, <-chan core.ProgressEvent, func(), error) {
	return s.dispatcher.Dispatch(ctx, tenantID, doc)
}

// Subscribe attaches an additional listener to a task's progress stream.
// Events published before subscribing are not replayed.
func (s *Service) Subscribe(taskID string) (<-chan core.ProgressEvent, func()) {
	return s.broker.Subscribe(taskID)
}

// Answer responds to a question using only the tenant's indexed documents.
func (s *Service) Answer(ctx context.Context, tenantID, question string) (*core.Answer, error) {
	return s.answerer.Answer(ctx, tenantID, question)
}

// ScheduleCleanup arranges the tenant's collection to be deleted after the
// retention window.
func (s *Service) ScheduleCleanup(tenantID string) error {
	return s.lifecycle.Schedule(tenantID)
}

// Sweep deletes every collection past the retention window now and returns
// the number deleted.
func (s *Service) Sweep(ctx context.Context) int {
	return s.lifecycle.Sweep(ctx)
}

// Close shuts the service down: the sweep stops, worker pools drain, the
// broker closes every subscriber channel, and the store is closed last.
func (s *Service) Close() error {
	s.lifecycle.Stop()
	s.dispatcher.Release()
	s.broker.Close()

	if err := s.provider.Close(); err != nil {
		s.logger.Error("error closing AI provider", "err", err)
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error("error closing store", "err", err)
		return err
	}
	return nil
}
