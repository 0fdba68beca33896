package badger

import (
	"encoding/binary"

	"github.com/poiesic/docbrief/core"
)

// Key prefixes for different data types
const (
	collectionMetaPrefix = "colmeta"
	chunkRecordPrefix    = "chkrec"
)

// makeCollectionMetaKey generates the key for a collection's metadata record.
func makeCollectionMetaKey(tenantID string) []byte {
	return []byte(collectionMetaPrefix + ":" + tenantID)
}

// makeChunkPrefix generates the key prefix covering all chunks of a tenant.
func makeChunkPrefix(tenantID string) []byte {
	return []byte(chunkRecordPrefix + ":" + tenantID + ":")
}

// makeChunkKey generates a composite key for a chunk record.
// Format: prefix:tenant:id
func makeChunkKey(tenantID string, id core.ID) []byte {
	prefix := makeChunkPrefix(tenantID)
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// chunkIDFromKey recovers the chunk id from a composite chunk key.
func chunkIDFromKey(key []byte) core.ID {
	if len(key) < 8 {
		return 0
	}
	return core.ID(binary.BigEndian.Uint64(key[len(key)-8:]))
}
