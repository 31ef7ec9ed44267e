package op

import (
	"fmt"

	"github.com/roach88/docmodel/internal/ir"
)

// Kind identifies the variant of an Operation.
type Kind uint8

const (
	KindCreate Kind = iota + 1
	KindDelete
	KindSet
	KindUpdate
)

// String returns the kind name used in logs and metrics labels.
func (k Kind) String() string {
	switch k {
	case KindCreate:
		return "create"
	case KindDelete:
		return "delete"
	case KindSet:
		return "set"
	case KindUpdate:
		return "update"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Operation is a graph-level edit addressed by a path.
//
// Operation is an immutable value: factories copy their inputs and
// accessors return copies. The zero Operation is invalid.
type Operation struct {
	kind Kind
	path ir.Path
	val  ir.Value // create/delete: node data; set: new value
	old  ir.Value // set only
	diff Primitive
}

// Create returns an operation creating node at path [id].
func Create(path ir.Path, node ir.Object) Operation {
	return Operation{kind: KindCreate, path: path.Clone(), val: ir.CloneObject(node)}
}

// Delete returns an operation deleting the node at path [id]. node is the
// full node data at deletion time, which Invert needs to recreate it.
func Delete(path ir.Path, node ir.Object) Operation {
	return Operation{kind: KindDelete, path: path.Clone(), val: ir.CloneObject(node)}
}

// Set returns an operation replacing the property at path. A nil value
// means absent: setting nil removes the property. The wire format cannot
// tell null from absent, so a top-level Null is stored as nil on both
// sides; a set never writes an explicit null.
func Set(path ir.Path, oldValue, newValue ir.Value) Operation {
	return Operation{kind: KindSet, path: path.Clone(), val: AbsentIfNull(newValue), old: AbsentIfNull(oldValue)}
}

// AbsentIfNull returns nil for Null and a deep copy of v otherwise.
func AbsentIfNull(v ir.Value) ir.Value {
	if _, isNull := v.(ir.Null); isNull {
		return nil
	}
	return ir.Clone(v)
}

// Update returns an operation applying diff to the property at path. diff
// must be non-nil; applying or encoding an update without one fails.
func Update(path ir.Path, diff Primitive) Operation {
	return Operation{kind: KindUpdate, path: path.Clone(), diff: diff}
}

// Kind returns the operation variant.
func (o Operation) Kind() Kind { return o.kind }

// Path returns a copy of the addressed path.
func (o Operation) Path() ir.Path { return o.path.Clone() }

func (o Operation) IsCreate() bool { return o.kind == KindCreate }
func (o Operation) IsDelete() bool { return o.kind == KindDelete }
func (o Operation) IsSet() bool    { return o.kind == KindSet }
func (o Operation) IsUpdate() bool { return o.kind == KindUpdate }

// Value returns the node data of a create or delete, or the new value of
// a set. It returns nil for updates.
func (o Operation) Value() ir.Value { return ir.Clone(o.val) }

// Node returns the node data of a create or delete as an Object.
func (o Operation) Node() ir.Object {
	obj, _ := o.val.(ir.Object)
	return ir.CloneObject(obj)
}

// OldValue returns the previous value of a set, nil otherwise.
func (o Operation) OldValue() ir.Value { return ir.Clone(o.old) }

// ValueOp returns the wrapped primitive of an update, nil otherwise.
func (o Operation) ValueOp() Primitive { return o.diff }

// Invert returns the operation that undoes o.
// create and delete swap, set swaps old and new, update inverts its primitive.
func (o Operation) Invert() Operation {
	switch o.kind {
	case KindCreate:
		return Operation{kind: KindDelete, path: o.path.Clone(), val: ir.Clone(o.val)}
	case KindDelete:
		return Operation{kind: KindCreate, path: o.path.Clone(), val: ir.Clone(o.val)}
	case KindSet:
		return Operation{kind: KindSet, path: o.path.Clone(), val: ir.Clone(o.old), old: ir.Clone(o.val)}
	case KindUpdate:
		if o.diff == nil {
			return Operation{kind: KindUpdate, path: o.path.Clone()}
		}
		return Operation{kind: KindUpdate, path: o.path.Clone(), diff: o.diff.Invert()}
	default:
		return o
	}
}

// Equal reports whether a and b describe the same edit.
func Equal(a, b Operation) bool {
	return a.kind == b.kind &&
		a.path.Equal(b.path) &&
		ir.Equal(a.val, b.val) &&
		ir.Equal(a.old, b.old) &&
		EqualPrimitive(a.diff, b.diff)
}

func (o Operation) String() string {
	switch o.kind {
	case KindUpdate:
		return fmt.Sprintf("update %s %v", o.path, o.diff)
	case KindSet:
		return fmt.Sprintf("set %s", o.path)
	default:
		return fmt.Sprintf("%s %s", o.kind, o.path)
	}
}

// Reverse returns the inverse of ops: each operation inverted, in reverse
// order. Applying ops then Reverse(ops) restores the original state.
func Reverse(ops []Operation) []Operation {
	out := make([]Operation, len(ops))
	for i, o := range ops {
		out[len(ops)-1-i] = o.Invert()
	}
	return out
}
