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


// Package summarize produces markdown summaries of documents.
//
// Short documents are summarized in a single model call. Documents above the
// single-pass token threshold go through map-reduce: the text is split into
// halves-of-budget windows, each window is summarized concurrently, and the
// partial summaries are combined into one final summary.
package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/poiesic/docbrief/ai"
	"github.com/poiesic/docbrief/core"
	"github.com/poiesic/docbrief/splitter"
)

const (
	// defaultSinglePassTokens is the largest document summarized in one call.
	defaultSinglePassTokens = 3000

	// defaultMaxTokens is the hard ceiling above which summarization refuses.
	defaultMaxTokens = 100_000

	// defaultMapWorkers bounds the concurrent map-phase model calls.
	defaultMapWorkers = 4

	// charsPerToken approximates prose token density when converting the
	// token budget into the character budget the splitter works in.
	charsPerToken = 4
)

// Summarizer turns document text into a titled markdown summary.
type Summarizer struct {
	completer        ai.Completer
	singlePassTokens int
	maxTokens        int
	mapWorkers       int
	logger           *slog.Logger
}

// Option configures a Summarizer.
type Option func(*Summarizer) error

// WithSinglePassTokens overrides the single-call threshold.
func WithSinglePassTokens(tokens int) Option {
	return func(s *Summarizer) error {
		if tokens <= 0 {
			return fmt.Errorf("%w: single-pass threshold must be positive, got %d", core.ErrConfiguration, tokens)
		}
		s.singlePassTokens = tokens
		return nil
	}
}

// WithMaxTokens overrides the document token ceiling.
func WithMaxTokens(tokens int) Option {
	return func(s *Summarizer) error {
		if tokens <= 0 {
			return fmt.Errorf("%w: token ceiling must be positive, got %d", core.ErrConfiguration, tokens)
		}
		s.maxTokens = tokens
		return nil
	}
}

// WithMapWorkers overrides the map-phase concurrency.
func WithMapWorkers(workers int) Option {
	return func(s *Summarizer) error {
		if workers <= 0 {
			return fmt.Errorf("%w: map workers must be positive, got %d", core.ErrConfiguration, workers)
		}
		s.mapWorkers = workers
		return nil
	}
}

// New creates a Summarizer backed by the given completer.
func New(completer ai.Completer, opts ...Option) (*Summarizer, error) {
	if completer == nil {
		return nil, fmt.Errorf("%w: completer is required", core.ErrConfiguration)
	}

	s := &Summarizer{
		completer:        completer,
		singlePassTokens: defaultSinglePassTokens,
		maxTokens:        defaultMaxTokens,
		mapWorkers:       defaultMapWorkers,
		logger:           slog.Default().With("component", "summarizer"),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Summarize produces a titled markdown summary of text.
// Returns core.ErrDocumentTooLarge when the text exceeds the token ceiling.
func (s *Summarizer) Summarize(ctx context.Context, text string) (*core.Summary, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, core.ErrEmptyDocument
	}

	tokens := s.completer.CountTokens(text)
	if tokens > s.maxTokens {
		return nil, fmt.Errorf("%w: %d tokens exceeds limit of %d", core.ErrDocumentTooLarge, tokens, s.maxTokens)
	}

	var (
		markdown string
		err      error
	)
	if tokens <= s.singlePassTokens {
		s.logger.Debug("single-pass summary", "tokens", tokens)
		markdown, err = s.summarizeOnce(ctx, text)
	} else {
		s.logger.Debug("map-reduce summary", "tokens", tokens)
		markdown, err = s.summarizeMapReduce(ctx, text, tokens)
	}
	if err != nil {
		return nil, err
	}
	markdown = strings.TrimSpace(markdown)

	title, err := s.deriveTitle(ctx, markdown)
	if err != nil {
		return nil, err
	}

	return &core.Summary{Title: title, Markdown: markdown}, nil
}

func (s *Summarizer) summarizeOnce(ctx context.Context, text string) (string, error) {
	out, err := s.completer.Complete(ctx, summaryPrompt(text))
	if err != nil {
		return "", fmt.Errorf("%w: summary generation: %v", core.ErrProcessing, err)
	}
	return out, nil
}

// summarizeMapReduce splits the text into windows of roughly half the
// single-pass budget, summarizes each concurrently, and combines the
// partials. Window order is preserved in the combine input.
func (s *Summarizer) summarizeMapReduce(ctx context.Context, text string, tokens int) (string, error) {
	chunkTokens := s.singlePassTokens / 2
	chunkChars := chunkTokens * charsPerToken
	overlapChars := chunkChars / 10

	split, err := splitter.New(chunkChars, overlapChars)
	if err != nil {
		return "", err
	}
	spans := split.Split(text)
	s.logger.Debug("map phase", "windows", len(spans), "tokens", tokens)

	partials := make([]string, len(spans))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.mapWorkers)
	for i, span := range spans {
		group.Go(func() error {
			out, err := s.completer.Complete(groupCtx, partialPrompt(span.Text))
			if err != nil {
				return fmt.Errorf("%w: partial summary %d: %v", core.ErrProcessing, i, err)
			}
			partials[i] = strings.TrimSpace(out)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return "", err
	}

	combined := strings.Join(partials, "\n\n")
	out, err := s.completer.Complete(ctx, combinePrompt(combined))
	if err != nil {
		return "", fmt.Errorf("%w: combining summaries: %v", core.ErrProcessing, err)
	}
	return out, nil
}

// deriveTitle asks the model for a short document title based on the summary.
// Falls back to the first heading or line of the summary when the model call
// fails, so a summary is never lost to a title error.
func (s *Summarizer) deriveTitle(ctx context.Context, markdown string) (string, error) {
	out, err := s.completer.Complete(ctx, titlePrompt(markdown))
	if err != nil {
		s.logger.Warn("title generation failed, using fallback", "error", err)
		return fallbackTitle(markdown), nil
	}

	title := sanitizeTitle(out)
	if title == "" {
		return fallbackTitle(markdown), nil
	}
	return title, nil
}

// sanitizeTitle strips quotes, heading markers, and whitespace the model
// tends to wrap titles in, and collapses the title onto one line.
func sanitizeTitle(raw string) string {
	title := strings.TrimSpace(raw)
	if idx := strings.IndexByte(title, '\n'); idx >= 0 {
		title = title[:idx]
	}
	title = strings.TrimSpace(strings.TrimLeft(title, "#"))
	title = strings.Trim(title, "\"'")
	return strings.TrimSpace(title)
}

func fallbackTitle(markdown string) string {
	for _, line := range strings.Split(markdown, "\n") {
		if title := sanitizeTitle(line); title != "" {
			const maxTitleLen = 80
			if runes := []rune(title); len(runes) > maxTitleLen {
				title = strings.TrimSpace(string(runes[:maxTitleLen]))
			}
			return title
		}
	}
	return "Untitled Document"
}
