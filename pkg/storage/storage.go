// Package storage defines the durable key-value contract consumed by the
// session and transport layers, with a pebble-backed implementation for
// devices and an in-memory one for tests.
package storage

import (
	"errors"
	"fmt"
)

// ErrNotFound reports an absent key. Absence is normal control flow for
// callers (a missing token just means "unauthenticated"), so it is a
// sentinel rather than a StorageError.
var ErrNotFound = errors.New("storage: key not found")

// StorageError wraps a backend failure on a read or write.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// KV is the durable single-key get/set/delete contract. Operations are
// atomic per key with last-writer-wins semantics; there is no
// compare-and-swap.
type KV interface {
	// Get returns the stored value, ErrNotFound when absent, or a
	// *StorageError on backend failure.
	Get(key string) (string, error)
	// Set persists the value durably before returning.
	Set(key, value string) error
	// Delete removes the key. Deleting an absent key is not an error.
	Delete(key string) error
}
