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

import (
	"fmt"
	"strings"
)

// ValidateDocument validates an uploaded document according to domain rules.
//
// Validation rules:
//   - Content must not be empty
//   - Kind must be one of the supported formats
//
// NOT validated:
//   - SourceRef (an empty ref defaults to the kind's upload label downstream)
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrEmptyDocument)
	}

	if len(doc.Content) == 0 {
		return ErrEmptyDocument
	}

	if !doc.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedType, doc.Kind)
	}

	return nil
}

// ValidateTenantID validates a tenant identifier. Colons are reserved as
// the storage key separator, so a tenant id must not contain them.
func ValidateTenantID(tenantID string) error {
	if tenantID == "" {
		return ErrEmptyTenant
	}
	if strings.ContainsRune(tenantID, ':') {
		return fmt.Errorf("%w: must not contain ':'", ErrInvalidTenant)
	}
	return nil
}
