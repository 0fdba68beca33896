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


package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/docbrief"
	"github.com/poiesic/docbrief/ai"
	"github.com/poiesic/docbrief/core"
)

func main() {
	app := &cli.App{
		Name:  "docbrief",
		Usage: "Document ingestion, summarization, and grounded Q&A",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Index and summarize a document, streaming progress",
				ArgsUsage: "FILE",
				Action:    ingestCommand,
				Flags: append(serviceFlags(),
					&cli.StringFlag{
						Name:  "kind",
						Usage: "Document kind (pdf, txt, md); inferred from the file extension if empty",
					},
				),
			},
			{
				Name:      "ask",
				Usage:     "Ask a question grounded in the tenant's indexed documents",
				ArgsUsage: "QUESTION",
				Action:    askCommand,
				Flags: append(serviceFlags(),
					&cli.BoolFlag{
						Name:  "sources",
						Usage: "Print the source chunks the answer was grounded in",
					},
				),
			},
			{
				Name:   "sweep",
				Usage:  "Delete collections older than the retention window",
				Action: sweepCommand,
				Flags:  serviceFlags(),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func serviceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "db",
			Aliases:  []string{"d"},
			Usage:    "Path to BadgerDB database directory",
			Required: true,
		},
		&cli.StringFlag{
			Name:    "tenant",
			Aliases: []string{"t"},
			Usage:   "Tenant identifier",
			Value:   "default",
		},
		&cli.StringFlag{
			Name:  "embedding-host",
			Usage: "Embedding service host URL",
			Value: "http://localhost:11434/v1",
		},
		&cli.StringFlag{
			Name:  "embedding-model",
			Usage: "Embedding model name",
			Value: "embeddinggemma",
		},
		&cli.StringFlag{
			Name:  "completion-host",
			Usage: "Completion service host URL",
			Value: "http://localhost:11434/v1",
		},
		&cli.StringFlag{
			Name:  "completion-model",
			Usage: "Completion model name",
			Value: "qwen2.5:3b",
		},
	}
}

func openService(c *cli.Context) (*docbrief.Service, error) {
	aiConfig := ai.NewConfig(
		ai.WithEmbeddingHost(c.String("embedding-host")),
		ai.WithEmbeddingModel(c.String("embedding-model")),
		ai.WithCompletionHost(c.String("completion-host")),
		ai.WithCompletionModel(c.String("completion-model")),
	)
	if err := aiConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid AI configuration: %w", err)
	}

	service, err := docbrief.NewService(c.String("db"), docbrief.WithAIConfig(aiConfig))
	if err != nil {
		return nil, fmt.Errorf("failed to open service: %w", err)
	}
	return service, nil
}

func ingestCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one FILE argument")
	}
	path := c.Args().First()

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	kind, err := documentKind(c.String("kind"), path)
	if err != nil {
		return err
	}

	service, err := openService(c)
	if err != nil {
		return err
	}
	defer service.Close()

	doc := core.Document{
		Content:   content,
		Kind:      kind,
		SourceRef: filepath.Base(path),
	}
	task, events, cancel, err := service.Ingest(context.Background(), c.String("tenant"), doc)
	if err != nil {
		return fmt.Errorf("dispatch failed: %w", err)
	}
	defer cancel()

	fmt.Fprintf(os.Stderr, "Task: %s\n", task.Id)

	// Two jobs, two terminal events.
	remaining := 2
	failed := false
	for remaining > 0 {
		event, ok := <-events
		if !ok {
			return fmt.Errorf("progress stream closed before both jobs finished")
		}

		switch event.Kind {
		case core.EventStatus:
			fmt.Fprintf(os.Stderr, "[%s] %s\n", event.Stage, event.Message)
		case core.EventError:
			fmt.Fprintf(os.Stderr, "[%s] error: %s\n", event.Stage, event.Message)
			failed = true
			remaining--
		case core.EventResult:
			switch payload := event.Payload.(type) {
			case core.Summary:
				fmt.Printf("# %s\n\n%s\n", payload.Title, payload.Markdown)
			case string:
				fmt.Fprintf(os.Stderr, "[%s] indexed %d characters\n", event.Stage, len(payload))
			}
			remaining--
		}
	}

	if failed {
		return fmt.Errorf("ingestion finished with errors")
	}
	return nil
}

func askCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one QUESTION argument")
	}
	question := c.Args().First()

	service, err := openService(c)
	if err != nil {
		return err
	}
	defer service.Close()

	got, err := service.Answer(context.Background(), c.String("tenant"), question)
	if err != nil {
		return fmt.Errorf("answering failed: %w", err)
	}

	fmt.Println(got.Text)
	if c.Bool("sources") && len(got.Sources) > 0 {
		fmt.Println("\nSources:")
		for i, source := range got.Sources {
			fmt.Printf("[%d] %s\n", i+1, source)
		}
	}
	return nil
}

func sweepCommand(c *cli.Context) error {
	service, err := openService(c)
	if err != nil {
		return err
	}
	defer service.Close()

	deleted := service.Sweep(context.Background())
	fmt.Fprintf(os.Stderr, "Deleted %d expired collections\n", deleted)
	return nil
}

// documentKind resolves the content kind from the flag or the file extension.
func documentKind(flag, path string) (core.ContentKind, error) {
	raw := flag
	if raw == "" {
		raw = strings.TrimPrefix(filepath.Ext(path), ".")
	}

	kind := core.ContentKind(strings.ToLower(raw))
	if kind == "markdown" {
		kind = core.ContentKindMarkdown
	}
	if !kind.Valid() {
		return "", fmt.Errorf("unsupported document kind %q: must be pdf, txt, or md", raw)
	}
	return kind, nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
