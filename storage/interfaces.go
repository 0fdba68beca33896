package storage

import (
	"context"

	"github.com/poiesic/docbrief/core"
)

// CollectionStore manages per-tenant chunk collections.
// Implementations must be thread-safe and support concurrent access.
type CollectionStore interface {
	// EnsureCollection creates the tenant's collection if it does not exist.
	// Idempotent: never errors when the collection is already present, and
	// never resets the original creation timestamp.
	EnsureCollection(ctx context.Context, tenantID string) error

	// CollectionExists reports whether the tenant has a collection.
	CollectionExists(ctx context.Context, tenantID string) (bool, error)

	// ExistingIDs returns the set of chunk ids already stored for the tenant.
	// Used to compute the embedding delta before paying for new embeddings.
	// Returns ErrCollectionNotFound if the collection does not exist.
	ExistingIDs(ctx context.Context, tenantID string) (map[core.ID]struct{}, error)

	// Upsert inserts the records whose chunk id is not already present and
	// returns the number inserted. Records with known ids are skipped.
	// Safe under concurrent calls for the same tenant: writes are
	// id-addressed and last-write-wins per id.
	// Returns ErrCollectionNotFound if the collection does not exist.
	Upsert(ctx context.Context, tenantID string, records []core.ChunkRecord) (int, error)

	// Query returns up to k chunks ranked by maximal marginal relevance.
	// The top fetchK candidates by cosine similarity are re-ranked trading
	// relevance against redundancy: lambda 1 is pure relevance, lambda 0
	// pure diversity.
	// Returns ErrCollectionNotFound if the collection does not exist.
	Query(ctx context.Context, tenantID string, vector []float32, k, fetchK int, lambda float32) ([]core.ScoredChunk, error)

	// DeleteCollection removes the tenant's collection and all of its chunks.
	// Idempotent: a no-op when the collection is absent.
	DeleteCollection(ctx context.Context, tenantID string) error

	// ListCollections returns metadata for every known collection.
	// The lifecycle sweep uses the creation timestamps to find expired tenants.
	ListCollections(ctx context.Context) ([]core.CollectionMeta, error)

	// Close closes the storage backend and releases resources.
	Close() error
}
