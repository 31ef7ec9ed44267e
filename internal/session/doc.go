// Package session owns a document's edit history.
//
// Edits run as transactions against a copy-on-write stage; a successful
// transaction becomes a change that is applied to the document, pushed
// onto the undo stack (or merged into the previous change by a
// Compressor), and published. After the merge window a change is
// finalized: appended to the journal and handed to the hub. The hub
// reports back through ReceivedChange and AcknowledgeChange.
//
// All Session methods serialize on one mutex. At most one transaction may
// be open; a second Transaction call fails with a NESTED_TRANSACTION usage
// error instead of waiting. Document listeners run under the session lock
// and must not call back into the session.
package session
