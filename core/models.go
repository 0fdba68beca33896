package core

//go:generate go run ../cmd/musgen

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing so that re-ingesting
// identical content yields identical IDs.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// ChunkIDFrom derives the ID for a chunk from its position within a source.
// The tuple (tenant, sourceRef, start, ordinal) is canonical: the same
// document split with the same parameters always yields the same IDs,
// which is what makes chunk upserts idempotent.
func ChunkIDFrom(tenantID, sourceRef string, start, ordinal int) ID {
	return IDFromContent(fmt.Sprintf("%s|%s|%d|%d", tenantID, sourceRef, start, ordinal))
}

// ContentKind identifies the declared format of an uploaded document.
type ContentKind string

const (
	// ContentKindPDF is a PDF document.
	ContentKindPDF ContentKind = "pdf"
	// ContentKindText is a plain-text document.
	ContentKindText ContentKind = "txt"
	// ContentKindMarkdown is a markdown document.
	ContentKindMarkdown ContentKind = "md"
)

// Valid reports whether the kind is one of the supported formats.
func (k ContentKind) Valid() bool {
	switch k {
	case ContentKindPDF, ContentKindText, ContentKindMarkdown:
		return true
	}
	return false
}

// Document is a raw uploaded document. It is transient: consumed once by
// extraction and never persisted beyond the ingestion jobs' lifetime.
type Document struct {
	Content   []byte
	Kind      ContentKind
	SourceRef string         // Origin label (filename or upload channel), part of chunk identity
	Metadata  map[string]any // Optional caller metadata, stringified onto chunk records
}

// Chunk is a bounded, overlapping slice of document text, the unit of
// embedding and retrieval. Chunks are immutable once created and owned by
// exactly one tenant collection.
type Chunk struct {
	Id        ID
	TenantId  string
	SourceRef string
	Text      string
	Start     int // Rune offset of the chunk within the extracted text
	Ordinal   int // Position of the chunk in the split sequence
}

// ChunkRecord is the stored form of a chunk: the chunk, its embedding
// vector, and scalar metadata (non-scalar values are stringified before
// storage).
type ChunkRecord struct {
	Chunk      Chunk
	Vector     []float32
	Metadata   map[string]string
	InsertedAt time.Time
}

// CollectionMeta is the stored metadata record for a tenant collection.
// CreatedAt drives the retention window: collections older than the window
// are eligible for deletion.
type CollectionMeta struct {
	TenantId  string
	CreatedAt time.Time
}

// Age returns how long ago the collection was created.
func (m CollectionMeta) Age(now time.Time) time.Duration {
	return now.Sub(m.CreatedAt)
}

// Task correlates one ingestion request to its two concurrent jobs.
type Task struct {
	Id        string
	TenantId  string
	CreatedAt time.Time
}

// ScoredChunk is a retrieval result with its relevance score.
type ScoredChunk struct {
	Chunk Chunk
	Score float32
}

// Summary is the structured output of the summarization job.
type Summary struct {
	Title    string
	Markdown string
}

// Answer is a grounded response to a question, with the deduplicated
// source chunk texts it was derived from. A refusal carries no sources.
type Answer struct {
	Text    string
	Sources []string
}
