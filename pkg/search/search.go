// Package search provisions and queries the full-text index over document
// titles and bodies. The index is derived from the document store and may be
// stale or missing; the store stays authoritative.
package search

import (
	"context"

	"github.com/hashicorp-forge/rdocs/pkg/models"
)

// Index is one searchable index.
type Index interface {
	// Name identifies the index in logs and errors.
	Name() string

	// Create provisions the index. It returns an error matching
	// ErrIndexExists when the index is already there.
	Create(ctx context.Context) error

	// Query returns the keys (doc:<id>) of up to limit documents whose
	// title or body matches pattern.
	Query(ctx context.Context, pattern string, limit int) ([]string, error)
}

// Indexer is implemented by indexes that must be fed documents explicitly.
// Indexes maintained by the backend itself (RediSearch follows the key
// prefix) do not implement it.
type Indexer interface {
	IndexDocument(ctx context.Context, key string, body models.Body) error
}

// Resolver loads the current body of a document.
type Resolver interface {
	Get(ctx context.Context, id int64) (models.Body, error)
}

// Pattern wraps a search term as a substring wildcard pattern.
func Pattern(term string) string {
	return "*" + term + "*"
}
