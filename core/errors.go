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


package core

import "errors"

// Domain errors. Callers classify failures with errors.Is rather than by
// matching message substrings.
var (
	// ErrConfiguration indicates invalid split or pipeline parameters.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrUnsupportedType indicates an unrecognized document content kind.
	ErrUnsupportedType = errors.New("unsupported document type")

	// ErrDocumentTooLarge indicates a document exceeding the token ceiling.
	ErrDocumentTooLarge = errors.New("document too large")

	// ErrCollectionNotFound indicates a query against an absent tenant collection.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrProcessing wraps failures from extraction, embedding, or model calls.
	ErrProcessing = errors.New("processing failed")

	// ErrEmptyTenant indicates a request with no tenant identifier.
	ErrEmptyTenant = errors.New("tenant id cannot be empty")

	// ErrInvalidTenant indicates a tenant identifier with reserved characters.
	ErrInvalidTenant = errors.New("invalid tenant id")

	// ErrEmptyDocument indicates a document with no content.
	ErrEmptyDocument = errors.New("document content cannot be empty")
)
