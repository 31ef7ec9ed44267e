// Package store provides SQLite-backed durable storage for document
// change journals.
//
// The store keeps an append-only log with:
//   - Changes: one row per finalized or received change, in journal order
//   - Operations: the change's operations as codec lines
//   - Snapshots: full document snapshots tagged with the journal position
//     they include
//
// # Ordering
//
// Journal order is the seq column (insertion order), never the change
// timestamp. Replay applies changes in seq order after the newest
// snapshot.
//
// # Integrity
//
// Each change row carries its content digest (see change.Change.Digest),
// and each snapshot carries the document digest. Reads verify both.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
