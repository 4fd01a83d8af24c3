// Package store provides the filesystem-like storage used to buffer capture
// fragments outside the process.
//
// Storage is a flat key space of immutable blobs. Blobs are written and read
// by key; listing and deletion work on key prefixes. Keys use '/' as a
// separator regardless of backend.
//
// # Backends
//
//   - Memory: map-backed, for tests and short sessions
//   - Dir: one file per key under a root directory
//   - SQLite: one row per key in a single database file
//
// # Ordering
//
// List returns keys in whatever order the backend produces. That order is NOT
// authoritative for anything; callers that need arrival order must encode it in
// the key and sort after parsing.
//
// # Atomicity
//
// A key is either fully written or absent. Dir writes to a temporary file and
// renames it into place; SQLite inserts the row in one statement. A reader never
// observes a truncated blob under a listed key.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
