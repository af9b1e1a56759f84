// Package store defines the document store operation surface shared by
// every backend.
package store

import (
	"context"

	"github.com/nfinity/nfindb/internal/model"
)

// Store persists schemaless documents addressed by (namespace, type, key).
//
// Every method is a single blocking unit of work against the backing
// medium. Failures are returned as *Error values classified by the
// sentinel kinds in errors.go; a missing document is ErrNotFound, never an
// empty document.
type Store interface {
	// Key space
	ListNamespaces(ctx context.Context) ([]string, error)
	ListTypes(ctx context.Context, namespace string) ([]string, error)
	DropNamespace(ctx context.Context, namespace string) (bool, error)
	DropType(ctx context.Context, namespace, typ string) (bool, error)

	// Documents
	Put(ctx context.Context, namespace, typ, key string, doc model.Document) error
	Get(ctx context.Context, namespace, typ, key string) (model.Document, error)
	Delete(ctx context.Context, namespace, typ, key string) (bool, error)
	List(ctx context.Context, namespace, typ string, opts model.ListOptions) ([]model.Item, error)
	Count(ctx context.Context, namespace, typ string) (int, error)

	// Restore writes rec with its own Created timestamp instead of the
	// current time. Used when loading backups.
	Restore(ctx context.Context, rec *model.Record) error

	// Lifecycle
	Close() error
}
