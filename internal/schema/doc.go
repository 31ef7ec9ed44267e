// Package schema describes the node types a document may contain.
//
// A Schema is compiled from CUE. Each node type has a kind and typed
// properties; kinds add implicit properties (every node has id and type,
// annotations have path and offsets, containers have nodes). Validate and
// ValidateProperty check node data before it reaches the graph.
package schema
