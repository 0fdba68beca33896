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


// Package storage provides the storage abstraction layer for docbrief.
//
// This package defines the CollectionStore interface that decouples the
// per-tenant chunk collections from any particular backend. Collections are
// logical namespaces: each tenant owns exactly one, created lazily on first
// ingestion and destroyed by the lifecycle manager.
//
// # Constructor Return Type Pattern
//
// Public constructors in implementation packages return the
// storage.CollectionStore interface to enforce abstraction and enable
// alternative backends:
//
//	store, err := badger.NewStore(path)  // returns storage.CollectionStore
//
// Use the in-memory variant in tests:
//
//	store, err := badger.NewMemoryStore()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
// # Thread Safety
//
// All store implementations must be thread-safe and support concurrent
// access from multiple goroutines. Upserts are id-addressed and
// last-write-wins per id; since chunk ids are content-derived, concurrent
// upserts of the same document converge to the same state.
//
// # Context Support
//
// All store methods accept context.Context for cancellation and timeout
// support. Pass context.Background() for operations without specific
// timeout requirements.
package storage
