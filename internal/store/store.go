package store

import (
	"context"
	"errors"
)

// Store is the locked document abstraction over named JSON documents.
// Concurrent operations on the same document are fully serialized;
// operations on different documents proceed independently.
type Store interface {
	// Load fills out with the parsed document. A document that does not
	// exist yet loads as an empty mapping, not an error.
	Load(ctx context.Context, name string, out any) error

	// Save serializes doc and atomically replaces the document's contents.
	Save(ctx context.Context, name string, doc any) error

	// Update runs fn under the document's exclusive lock, so the whole
	// read-modify-write is one transaction. fn receives the raw current
	// content ("{}" when the document does not exist) and returns the
	// replacement content; returning nil bytes with a nil error leaves
	// the document untouched.
	Update(ctx context.Context, name string, fn UpdateFunc) error
}

// UpdateFunc mutates a document's raw content inside its locked section.
type UpdateFunc func(data []byte) ([]byte, error)

// ErrLockTimeout is returned when a document lock could not be acquired
// within the configured wait. It is transient: callers may retry once.
var ErrLockTimeout = errors.New("store: lock acquisition timed out")

var emptyDocument = []byte("{}")
