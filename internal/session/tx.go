package session

import (
	"unicode/utf16"

	"github.com/roach88/docmodel/internal/document"
	"github.com/roach88/docmodel/internal/graph"
	"github.com/roach88/docmodel/internal/ir"
	"github.com/roach88/docmodel/internal/op"
)

// TxFunc is the body of a transaction. It returns the after-state context
// of the change.
type TxFunc func(tx *Tx) (ir.Object, error)

// Tx stages the operations of one transaction. Reads see the document
// with the staged operations applied; the document itself is untouched
// until the transaction commits.
type Tx struct {
	doc   *document.Document
	stage *graph.Overlay
}

func newTx(doc *document.Document) *Tx {
	return &Tx{doc: doc, stage: graph.NewOverlay(doc.Graph())}
}

// Get returns a copy of the value at path, or nil.
func (tx *Tx) Get(path ir.Path) ir.Value { return tx.stage.Get(path) }

// Node returns a copy of the node data for id.
func (tx *Tx) Node(id string) (ir.Object, bool) { return tx.stage.Node(id) }

// Has reports whether a node with id exists.
func (tx *Tx) Has(id string) bool { return tx.stage.Has(id) }

// Apply validates o against the schema and stages it.
func (tx *Tx) Apply(o op.Operation) error {
	if err := tx.doc.Check(tx.stage, o); err != nil {
		return err
	}
	return tx.stage.Apply(o)
}

// Create adds node.
func (tx *Tx) Create(node ir.Object) error {
	return tx.Apply(op.Create(ir.Path{node.ID()}, node))
}

// Delete removes the node with id.
func (tx *Tx) Delete(id string) error {
	node, ok := tx.stage.Node(id)
	if !ok {
		return ir.Errorf(ir.ErrCodeMissingNode, ir.Path{id}, "node does not exist")
	}
	return tx.Apply(op.Delete(ir.Path{id}, node))
}

// Set replaces the value at path. A nil v removes the property.
func (tx *Tx) Set(path ir.Path, v ir.Value) error {
	return tx.Apply(op.Set(path, tx.stage.Get(path), v))
}

// Update applies diff to the value at path.
func (tx *Tx) Update(path ir.Path, diff op.Primitive) error {
	return tx.Apply(op.Update(path, diff))
}

// InsertText inserts text at a UTF-16 offset.
func (tx *Tx) InsertText(path ir.Path, pos int, text string) error {
	return tx.Update(path, op.TextInsert(pos, text))
}

// DeleteText removes the UTF-16 range [start, end).
func (tx *Tx) DeleteText(path ir.Path, start, end int) error {
	s, ok := tx.stage.Get(path).(ir.String)
	if !ok {
		if tx.stage.Get(path) == nil {
			return ir.Errorf(ir.ErrCodeMissingProperty, path, "property does not exist")
		}
		return ir.Errorf(ir.ErrCodeTypeMismatch, path, "not a string")
	}
	units := utf16.Encode([]rune(string(s)))
	if start < 0 || end < start || end > len(units) {
		return ir.Errorf(ir.ErrCodeOutOfRange, path, "range [%d, %d) outside length %d", start, end, len(units))
	}
	return tx.Update(path, op.TextDelete(start, string(utf16.Decode(units[start:end]))))
}

// InsertAt inserts v into the array at path.
func (tx *Tx) InsertAt(path ir.Path, pos int, v ir.Value) error {
	return tx.Update(path, op.ArrayInsert(pos, v))
}

// RemoveAt removes the array element at pos.
func (tx *Tx) RemoveAt(path ir.Path, pos int) error {
	arr, ok := tx.stage.Get(path).(ir.Array)
	if !ok {
		if tx.stage.Get(path) == nil {
			return ir.Errorf(ir.ErrCodeMissingProperty, path, "property does not exist")
		}
		return ir.Errorf(ir.ErrCodeTypeMismatch, path, "not an array")
	}
	if pos < 0 || pos >= len(arr) {
		return ir.Errorf(ir.ErrCodeOutOfRange, path, "index %d outside length %d", pos, len(arr))
	}
	return tx.Update(path, op.ArrayDelete(pos, arr[pos]))
}
