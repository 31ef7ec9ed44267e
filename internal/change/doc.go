// Package change groups operations into change records.
//
// A Change bundles an ordered list of operations with before/after context
// (typically selection state), an owner, a timestamp, and a lifecycle state
// that only moves forward:
//
//	Provisional -> Final -> Pending -> Acknowledged
//
// Lookup tables for created, deleted, and updated paths are computed when
// the change is built, so IsAffected is a map lookup.
//
// Changes rebuilt from their wire form with FromRecord are frozen: their
// operations and context can no longer be folded or stamped.
package change
