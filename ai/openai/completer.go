package openai

import (
	"context"
	"log/slog"

	"github.com/pkoukk/tiktoken-go"
	"github.com/poiesic/docbrief/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Completer implements ai.Completer using OpenAI-compatible chat APIs.
// Token counting runs locally over a tiktoken encoding.
type Completer struct {
	client   llms.Model
	encoding *tiktoken.Tiktoken
	logger   *slog.Logger
}

// newCompleter is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newCompleter(config *ai.Config) (*Completer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Create OpenAI client configured for completions
	// Use "none" as token for local OpenAI-compatible services that don't require authentication
	client, err := openai.New(
		openai.WithBaseURL(config.CompletionHost),
		openai.WithToken("none"),
		openai.WithModel(config.CompletionModel),
	)
	if err != nil {
		return nil, err
	}

	encoding, err := tiktoken.GetEncoding(config.TokenEncoding)
	if err != nil {
		return nil, err
	}

	return &Completer{
		client:   client,
		encoding: encoding,
		logger:   slog.Default().With("component", "openai-completer"),
	}, nil
}

// NewCompleter creates a new completer using the provided configuration.
//
// Returns ai.Completer interface to enforce abstraction.
func NewCompleter(config *ai.Config) (ai.Completer, error) {
	return newCompleter(config)
}

// Complete sends a prompt to the model and returns its text response.
// Temperature is pinned to 0 so summaries and answers are reproducible.
func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	c.logger.Debug("requesting completion", "promptTokens", c.CountTokens(prompt))

	response, err := llms.GenerateFromSinglePrompt(ctx, c.client, prompt,
		llms.WithTemperature(0))
	if err != nil {
		c.logger.Error("completion request failed", "err", err)
		return "", err
	}

	return response, nil
}

// CountTokens returns the number of tokens in the text under the configured encoding.
func (c *Completer) CountTokens(text string) int {
	return len(c.encoding.Encode(text, nil, nil))
}
