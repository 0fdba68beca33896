package core

import (
	"testing"
)

func TestIDFromContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "same content produces same ID",
			content: "test content",
		},
		{
			name:    "empty string",
			content: "",
		},
		{
			name:    "long content",
			content: "This is a much longer piece of content that should still hash consistently",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id1 := IDFromContent(tt.content)
			id2 := IDFromContent(tt.content)

			if id1 != id2 {
				t.Errorf("IDFromContent() produced different IDs for same content: %d vs %d", id1, id2)
			}
		})
	}
}

func TestIDFromContentDifferentInputs(t *testing.T) {
	id1 := IDFromContent("first")
	id2 := IDFromContent("second")

	if id1 == id2 {
		t.Errorf("IDFromContent() produced the same ID for different content: %d", id1)
	}
}

func TestChunkIDFrom(t *testing.T) {
	a := ChunkIDFrom("tenant-1", "doc.pdf", 0, 0)
	b := ChunkIDFrom("tenant-1", "doc.pdf", 0, 0)
	if a != b {
		t.Errorf("ChunkIDFrom() not deterministic: %d vs %d", a, b)
	}

	// Every tuple component participates in the identity.
	variants := []ID{
		ChunkIDFrom("tenant-2", "doc.pdf", 0, 0),
		ChunkIDFrom("tenant-1", "other.pdf", 0, 0),
		ChunkIDFrom("tenant-1", "doc.pdf", 350, 0),
		ChunkIDFrom("tenant-1", "doc.pdf", 0, 1),
	}
	for i, v := range variants {
		if v == a {
			t.Errorf("variant %d collided with base ID %d", i, a)
		}
	}
}

func TestContentKindValid(t *testing.T) {
	for _, kind := range []ContentKind{ContentKindPDF, ContentKindText, ContentKindMarkdown} {
		if !kind.Valid() {
			t.Errorf("ContentKind(%q).Valid() = false, want true", kind)
		}
	}

	for _, kind := range []ContentKind{"", "docx", "html"} {
		if kind.Valid() {
			t.Errorf("ContentKind(%q).Valid() = true, want false", kind)
		}
	}
}

func TestProgressEventTerminal(t *testing.T) {
	if StatusEvent("t1", StageIndex, "splitting").Terminal() {
		t.Error("status event reported as terminal")
	}
	if !ResultEvent("t1", StageIndex, "text").Terminal() {
		t.Error("result event not reported as terminal")
	}
	if !ErrorEvent("t1", StageSummary, "boom").Terminal() {
		t.Error("error event not reported as terminal")
	}
}
