// Package fragment persists capture patches per generation and replays them in
// arrival order.
//
// Every appended patch is stamped with a per-generation sequence number taken
// from a monotonic counter, starting at 0 with no gaps. The sequence number is
// the sole ordering authority: it is encoded in the storage key, parsed back on
// retrieval, and sorted numerically. Storage listing order is never trusted.
//
// # Key Layout
//
//	<namespace>/<generation>/rect-<sequence>-<x>-<y>-<w>-<h>.dat
//
// The payload is the raw packed pixel data of the patch.
//
// # Persistence Model
//
// Append returns as soon as the sequence number is assigned; the write runs on
// a bounded worker pool. Writes for one generation may complete in any order.
// A failed write cannot be reported to the caller that appended it, so it is
// recorded against its generation and surfaced by RetrieveGeneration as
// ErrIncompletePersistence.
//
// # Generation Barrier
//
// RetrieveGeneration blocks until every write issued for the generation has
// finished. This is the one synchronization point between ingestion and
// composition.
package fragment
