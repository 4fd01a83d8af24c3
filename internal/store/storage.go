package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Read when the key does not exist.
var ErrNotFound = errors.New("key not found")

// Storage is a flat, prefix-listable blob store.
//
// Implementations must be safe for concurrent use. Write must be atomic per
// key: a listed key always reads back the complete blob that was written.
type Storage interface {
	// Write stores data under key, replacing any previous blob.
	Write(ctx context.Context, key string, data []byte) error

	// List returns all keys starting with prefix, in backend-defined order.
	List(ctx context.Context, prefix string) ([]string, error)

	// Read returns the blob stored under key, or ErrNotFound.
	Read(ctx context.Context, key string) ([]byte, error)

	// Delete removes every key starting with prefix. Deleting nothing is not an error.
	Delete(ctx context.Context, prefix string) error

	// Close releases backend resources.
	Close() error
}

// Kind names a storage backend.
type Kind string

const (
	KindMemory Kind = "mem"
	KindDir    Kind = "dir"
	KindSQLite Kind = "sqlite"
)

// ValidKinds defines the allowed backend names.
var ValidKinds = []Kind{KindMemory, KindDir, KindSQLite}

// Open creates the backend named by kind. path is the root directory for
// KindDir and the database file for KindSQLite; it is ignored for KindMemory.
func Open(kind Kind, path string) (Storage, error) {
	switch kind {
	case KindMemory:
		return NewMemory(), nil
	case KindDir:
		if path == "" {
			return nil, fmt.Errorf("open dir storage: path is required")
		}
		return OpenDir(path)
	case KindSQLite:
		if path == "" {
			return nil, fmt.Errorf("open sqlite storage: path is required")
		}
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown storage kind %q: must be one of %v", kind, ValidKinds)
	}
}

// validateKey rejects keys that cannot be mapped onto every backend.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty key")
	}
	if strings.HasPrefix(key, "/") || strings.HasSuffix(key, "/") {
		return fmt.Errorf("key %q must not start or end with '/'", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("key %q has an invalid segment", key)
		}
	}
	return nil
}
