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


// Package answer provides grounded question answering over a tenant's
// indexed chunks.
//
// A question is embedded, the most relevant chunks are retrieved with
// maximal marginal relevance, and the model answers strictly from those
// chunks. When the chunks don't contain the answer the model is instructed
// to refuse with a fixed phrase, and the refusal carries no sources.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/docbrief/ai"
	"github.com/poiesic/docbrief/core"
	"github.com/poiesic/docbrief/storage"
)

// Retrieval parameters. The fetchK pool is re-ranked down to topK with MMR.
const (
	defaultTopK      = 3
	defaultFetchK    = 10
	defaultMMRLambda = 0.7
)

// User-facing responses for the non-answer paths.
const (
	// RefusalPhrase is the exact text the model must emit when the retrieved
	// chunks do not contain the answer. Detected verbatim to suppress sources.
	RefusalPhrase = "I don't have enough information in the provided documents to answer that."

	// msgNoCollection is returned when the tenant has no indexed documents.
	msgNoCollection = "Your session has expired or no documents have been uploaded yet."

	// msgInternalError is returned when retrieval or generation fails.
	msgInternalError = "Sorry, something went wrong while answering your question. Please try again."
)

// contextSeparator joins retrieved chunks in the prompt.
const contextSeparator = "\n\n---\n\n"

// Answerer answers questions grounded in a tenant's chunk collection.
type Answerer struct {
	store     storage.CollectionStore
	provider  ai.AIProvider
	topK      int
	fetchK    int
	mmrLambda float32
	logger    *slog.Logger
}

// Option configures an Answerer.
type Option func(*Answerer) error

// WithRetrieval overrides the retrieval parameters.
func WithRetrieval(topK, fetchK int, lambda float32) Option {
	return func(a *Answerer) error {
		if topK <= 0 || fetchK < topK {
			return fmt.Errorf("%w: topK=%d fetchK=%d", core.ErrConfiguration, topK, fetchK)
		}
		if lambda < 0 || lambda > 1 {
			return fmt.Errorf("%w: lambda=%v must be in [0,1]", core.ErrConfiguration, lambda)
		}
		a.topK = topK
		a.fetchK = fetchK
		a.mmrLambda = lambda
		return nil
	}
}

// New creates an Answerer.
func New(store storage.CollectionStore, provider ai.AIProvider, opts ...Option) (*Answerer, error) {
	if store == nil || provider == nil {
		return nil, fmt.Errorf("%w: store and provider are required", core.ErrConfiguration)
	}

	a := &Answerer{
		store:     store,
		provider:  provider,
		topK:      defaultTopK,
		fetchK:    defaultFetchK,
		mmrLambda: defaultMMRLambda,
		logger:    slog.Default().With("component", "answerer"),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Answer responds to a question using only the tenant's indexed documents.
// It never returns an error to the caller for runtime failures: missing
// collections and internal errors degrade to fixed user-facing responses
// with no sources.
func (a *Answerer) Answer(ctx context.Context, tenantID, question string) (*core.Answer, error) {
	if err := core.ValidateTenantID(tenantID); err != nil {
		return nil, err
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question cannot be empty", core.ErrConfiguration)
	}

	vector, err := a.provider.Embedder().EmbedText(ctx, question)
	if err != nil {
		a.logger.Error("question embedding failed", "tenant", tenantID, "err", err)
		return &core.Answer{Text: msgInternalError}, nil
	}

	scored, err := a.store.Query(ctx, tenantID, vector, a.topK, a.fetchK, a.mmrLambda)
	if err != nil {
		if errors.Is(err, storage.ErrCollectionNotFound) {
			return &core.Answer{Text: msgNoCollection}, nil
		}
		a.logger.Error("retrieval failed", "tenant", tenantID, "err", err)
		return &core.Answer{Text: msgInternalError}, nil
	}
	if len(scored) == 0 {
		return &core.Answer{Text: RefusalPhrase}, nil
	}

	sources := collectSources(scored)
	prompt := groundedPrompt(question, strings.Join(sources, contextSeparator))

	response, err := a.provider.Completer().Complete(ctx, prompt)
	if err != nil {
		a.logger.Error("answer generation failed", "tenant", tenantID, "err", err)
		return &core.Answer{Text: msgInternalError}, nil
	}

	response = strings.TrimSpace(response)
	if isRefusal(response) {
		return &core.Answer{Text: RefusalPhrase}, nil
	}
	return &core.Answer{Text: response, Sources: sources}, nil
}

// collectSources returns the retrieved chunk texts, deduplicated by content
// and in retrieval order.
func collectSources(scored []core.ScoredChunk) []string {
	seen := make(map[string]struct{}, len(scored))
	sources := make([]string, 0, len(scored))
	for _, sc := range scored {
		text := strings.TrimSpace(sc.Chunk.Text)
		if text == "" {
			continue
		}
		if _, ok := seen[text]; ok {
			continue
		}
		seen[text] = struct{}{}
		sources = append(sources, text)
	}
	return sources
}

// isRefusal detects the refusal phrase in model output, tolerating wrapper
// whitespace and small lead-ins the model may add despite the prompt.
func isRefusal(response string) bool {
	return strings.Contains(response, RefusalPhrase)
}

func groundedPrompt(question, context string) string {
	return fmt.Sprintf(`Answer the question using only the context below.
If the context does not contain the answer, respond with exactly:
%s
Do not use outside knowledge. Do not mention the context in your answer.

Context:
%s

Question: %s`, RefusalPhrase, context, question)
}
