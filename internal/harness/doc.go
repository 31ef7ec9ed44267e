// Package harness runs scripted editing scenarios against live sessions.
//
// A scenario seeds a document, drives one or more peer sessions through
// edits, undo/redo, merge-window timing and hub delivery, then checks the
// resulting documents, journals and trace.
//
// # Scenario Format
//
//	name: foo_to_foobar
//	description: "Typing extends a paragraph; undo and redo restore it"
//	peers: [alice, bob]        # default [local]
//	merge_window: 1500ms       # default session.DefaultMergeWindow
//	seed:
//	  - {id: p1, type: paragraph, content: foo}
//	steps:
//	  - do: insert_text
//	    path: p1.content
//	    pos: 3
//	    text: bar
//	  - do: advance
//	    duration: 2s
//	  - do: pump
//	assertions:
//	  - type: value
//	    peer: bob
//	    path: p1.content
//	    expect: foobar
//	  - type: converged
//
// # Steps
//
// Edit steps run as one transaction on the named peer (default: the first):
// create, delete, set, insert_text, delete_text, insert_at, remove_at.
// Session steps: undo, redo, flush. Environment steps: advance moves the
// shared fake clock, pump delivers queued hub messages. A step with
// expect_error must fail with that usage error code.
//
// # Assertion Types
//
//   - value: a property (or node) of a peer's document; a null expect means absent
//   - undo_depth, redo_depth, version: counters of a peer's session
//   - converged: every peer's document digest is equal
//   - journal: number of journaled changes of a peer in a state
//   - replay: replaying a peer's journal reproduces its document
//   - trace_count: number of trace events of a kind
//   - trace_order: changes appear in the trace in the listed order
//
// # Determinism
//
// Every run uses a fake clock starting at a fixed instant, per-peer
// sequential change ids (alice-1, alice-2, ...) and in-memory SQLite
// journals, so traces are stable for golden comparison.
package harness
