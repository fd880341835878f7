// Package persist keeps the catalog state in a durable medium between
// process runs.
package persist

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
)

// DefaultKey is the key the catalog state is stored under.
const DefaultKey = "catalog-state"

// ErrNoState is returned by a Medium when nothing is stored under a key.
var ErrNoState = errors.New("no persisted state")

// Medium is a key-value blob store.
type Medium interface {
	// Get returns the value for key, or ErrNoState.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put replaces the value for key.
	Put(ctx context.Context, key string, value []byte) error
	// Ping checks that the medium is usable.
	Ping(ctx context.Context) error
	Close() error
}

// PersistenceError describes a failed read, write or decode of the stored
// state.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
