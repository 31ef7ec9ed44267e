// Package op defines the edit operations applied to a document graph.
//
// Primitive operations edit a single value in place: TextOp inserts or
// deletes characters of a string, ArrayOp inserts or deletes an element of
// an array. Operation is the graph-level edit addressed by an ir.Path:
// create, delete, set, or update (which wraps a Primitive).
//
// Every operation carries enough data to invert itself. Invert never needs
// to look at the document.
package op
