// Package graph holds document nodes and applies operations to them.
//
// Store is the authoritative node table. It executes op.Operation values,
// notifies listeners once per applied operation, and maintains derived
// indexes. Indexing is controlled per call: Live applies update every
// index incrementally, Batched applies leave indexes untouched and mark
// them stale until the next Reindex. Import wraps a batched run followed by
// a single rebuild, which makes bulk loads independent of creation order.
//
// Overlay is a copy-on-write view over any Reader. A session stages one
// transaction in an Overlay and discards it wholesale on failure.
//
// Store is not safe for concurrent use. Its owner serializes access.
package graph
