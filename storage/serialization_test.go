package storage

import (
	"testing"
	"time"

	"github.com/poiesic/docbrief/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkRecordRoundTrip(t *testing.T) {
	record := &core.ChunkRecord{
		Chunk: core.Chunk{
			Id:        core.ChunkIDFrom("tenant-1", "doc.pdf", 350, 1),
			TenantId:  "tenant-1",
			SourceRef: "doc.pdf",
			Text:      "a chunk of extracted text",
			Start:     350,
			Ordinal:   1,
		},
		Vector:     []float32{0.1, -0.5, 0.9},
		Metadata:   map[string]string{"source": "doc.pdf", "page": "2"},
		InsertedAt: time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC),
	}

	data := MarshalChunkRecord(record)
	got, err := UnmarshalChunkRecord(data)
	require.NoError(t, err)

	assert.Equal(t, record.Chunk, got.Chunk)
	assert.Equal(t, record.Vector, got.Vector)
	assert.Equal(t, record.Metadata, got.Metadata)
	assert.True(t, record.InsertedAt.Equal(got.InsertedAt))
}

func TestCollectionMetaRoundTrip(t *testing.T) {
	meta := &core.CollectionMeta{
		TenantId:  "tenant-1",
		CreatedAt: time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC),
	}

	data := MarshalCollectionMeta(meta)
	got, err := UnmarshalCollectionMeta(data)
	require.NoError(t, err)

	assert.Equal(t, meta.TenantId, got.TenantId)
	assert.True(t, meta.CreatedAt.Equal(got.CreatedAt))
}

func TestCleanMetadata(t *testing.T) {
	got := CleanMetadata(map[string]any{
		"source": "doc.pdf",
		"page":   3,
		"score":  0.75,
		"flag":   true,
		"empty":  nil,
	})

	assert.Equal(t, "doc.pdf", got["source"])
	assert.Equal(t, "3", got["page"])
	assert.Equal(t, "0.75", got["score"])
	assert.Equal(t, "true", got["flag"])
	assert.NotContains(t, got, "empty")

	assert.Nil(t, CleanMetadata(nil))
}
