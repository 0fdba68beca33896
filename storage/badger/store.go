package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docbrief/core"
	"github.com/poiesic/docbrief/storage"
)

// Store implements storage.CollectionStore for BadgerDB.
// Each tenant's collection lives under its own key prefix; a metadata record
// carries the creation timestamp used by the retention sweep.
type Store struct {
	backend *Backend
	logger  *slog.Logger
}

var _ storage.CollectionStore = (*Store)(nil)

// NewStore opens a BadgerDB-backed collection store at the given path.
//
// Returns storage.CollectionStore interface to enforce abstraction.
func NewStore(filePath string) (storage.CollectionStore, error) {
	backend, err := OpenBackend(filePath, false)
	if err != nil {
		return nil, err
	}
	return newStore(backend), nil
}

// newStore wraps an open backend. Used by NewStore and the test helpers.
func newStore(backend *Backend) *Store {
	return &Store{
		backend: backend,
		logger:  slog.Default().With("component", "badger-store"),
	}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.backend.Close()
}

// EnsureCollection creates the tenant's collection metadata if absent.
// The creation timestamp is written once and never refreshed, so the
// retention clock keeps running across repeat ingestions.
func (s *Store) EnsureCollection(ctx context.Context, tenantID string) error {
	if err := core.ValidateTenantID(tenantID); err != nil {
		return err
	}
	if s.backend.IsClosed() {
		return storage.ErrStorageClosed
	}

	return s.backend.WithTx(func(tx *badger.Txn) error {
		key := makeCollectionMetaKey(tenantID)
		_, err := tx.Get(key)
		if err == nil {
			return nil // already present
		}
		if err != badger.ErrKeyNotFound {
			return err
		}

		meta := &core.CollectionMeta{
			TenantId:  tenantID,
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.Set(key, storage.MarshalCollectionMeta(meta)); err != nil {
			return err
		}
		s.logger.Info("created collection", "tenant", tenantID)
		return tx.Commit()
	}, true)
}

// CollectionExists reports whether the tenant has a collection.
func (s *Store) CollectionExists(ctx context.Context, tenantID string) (bool, error) {
	var exists bool
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		_, err := tx.Get(makeCollectionMetaKey(tenantID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	}, false)
	return exists, err
}

// ExistingIDs returns the set of chunk ids stored for the tenant.
func (s *Store) ExistingIDs(ctx context.Context, tenantID string) (map[core.ID]struct{}, error) {
	if err := s.requireCollection(ctx, tenantID); err != nil {
		return nil, err
	}

	ids := make(map[core.ID]struct{})
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeChunkPrefix(tenantID)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			ids[chunkIDFromKey(iter.Item().Key())] = struct{}{}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// upsertRetryLimit bounds transaction retries when concurrent upserts of
// overlapping records conflict at commit time.
const upsertRetryLimit = 10

// Upsert inserts records whose chunk id is not already present.
// Present ids are skipped, which makes re-ingesting identical content a
// no-op. Returns the number of records inserted.
//
// Concurrent upserts of overlapping batches converge: a commit conflict is
// retried, and the retry sees the winner's records and skips them.
func (s *Store) Upsert(ctx context.Context, tenantID string, records []core.ChunkRecord) (int, error) {
	if err := s.requireCollection(ctx, tenantID); err != nil {
		return 0, err
	}

	inserted := 0
	var err error
	for attempt := 0; attempt < upsertRetryLimit; attempt++ {
		inserted = 0
		err = s.backend.WithTx(func(tx *badger.Txn) error {
			for i := range records {
				record := records[i]
				key := makeChunkKey(tenantID, record.Chunk.Id)

				_, err := tx.Get(key)
				if err == nil {
					continue // id already indexed
				}
				if err != badger.ErrKeyNotFound {
					return err
				}

				if record.InsertedAt.IsZero() {
					record.InsertedAt = time.Now().UTC()
				}
				if err := tx.Set(key, storage.MarshalChunkRecord(&record)); err != nil {
					return err
				}
				inserted++
			}
			return tx.Commit()
		}, true)
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
		s.logger.Debug("upsert conflict, retrying", "tenant", tenantID, "attempt", attempt+1)
	}
	if err != nil {
		return 0, err
	}

	s.logger.Debug("upserted chunks", "tenant", tenantID, "inserted", inserted, "offered", len(records))
	return inserted, nil
}

// Query returns up to k chunks ranked by maximal marginal relevance against
// the query vector. The fetchK most similar chunks are collected first and
// then re-ranked; see storage.CollectionStore.
func (s *Store) Query(ctx context.Context, tenantID string, vector []float32, k, fetchK int, lambda float32) ([]core.ScoredChunk, error) {
	if k <= 0 || fetchK < k {
		return nil, fmt.Errorf("%w: k=%d fetchK=%d", storage.ErrInvalidQuery, k, fetchK)
	}
	if lambda < 0 || lambda > 1 {
		return nil, fmt.Errorf("%w: lambda=%v must be in [0,1]", storage.ErrInvalidQuery, lambda)
	}
	if err := s.requireCollection(ctx, tenantID); err != nil {
		return nil, err
	}

	var candidates []candidate
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeChunkPrefix(tenantID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var record *core.ChunkRecord
			err := iter.Item().Value(func(val []byte) error {
				var err error
				record, err = storage.UnmarshalChunkRecord(val)
				return err
			})
			if err != nil {
				return err
			}
			if record == nil || len(record.Vector) == 0 {
				continue
			}

			candidates = append(candidates, candidate{
				chunk:  record.Chunk,
				vector: record.Vector,
				score:  cosineSimilarity(vector, record.Vector),
			})
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	// Most similar first
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > fetchK {
		candidates = candidates[:fetchK]
	}

	return selectMMR(candidates, k, lambda), nil
}

// DeleteCollection removes the tenant's metadata record and all chunks.
func (s *Store) DeleteCollection(ctx context.Context, tenantID string) error {
	if s.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	return s.backend.WithTx(func(tx *badger.Txn) error {
		// Collect keys first; deleting while iterating invalidates the iterator.
		var keys [][]byte
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeChunkPrefix(tenantID)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		for iter.Rewind(); iter.Valid(); iter.Next() {
			keys = append(keys, iter.Item().KeyCopy(nil))
		}
		iter.Close()

		for _, key := range keys {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		if err := tx.Delete(makeCollectionMetaKey(tenantID)); err != nil {
			return err
		}

		s.logger.Info("deleted collection", "tenant", tenantID, "chunks", len(keys))
		return tx.Commit()
	}, true)
}

// ListCollections returns metadata for every known collection.
func (s *Store) ListCollections(ctx context.Context) ([]core.CollectionMeta, error) {
	if s.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	var metas []core.CollectionMeta
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(collectionMetaPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var meta *core.CollectionMeta
			err := iter.Item().Value(func(val []byte) error {
				var err error
				meta, err = storage.UnmarshalCollectionMeta(val)
				return err
			})
			if err != nil {
				return err
			}
			if meta != nil {
				metas = append(metas, *meta)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return metas, nil
}

// requireCollection maps an absent collection to ErrCollectionNotFound.
func (s *Store) requireCollection(ctx context.Context, tenantID string) error {
	if s.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	exists, err := s.CollectionExists(ctx, tenantID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: tenant %q", storage.ErrCollectionNotFound, strings.TrimSpace(tenantID))
	}
	return nil
}
