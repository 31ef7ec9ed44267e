package op

import (
	"fmt"
	"unicode/utf16"

	"github.com/roach88/docmodel/internal/ir"
)

// Primitive is a sealed interface for in-place value edits.
// Only TextOp and ArrayOp implement it.
type Primitive interface {
	primitive() // Sealed

	// IsInsert reports whether the edit inserts content.
	IsInsert() bool

	// IsDelete reports whether the edit removes content.
	IsDelete() bool

	// Pos is the 0-based offset of the edit.
	Pos() int

	// Invert returns the edit that undoes this one.
	Invert() Primitive

	// Apply returns the result of applying the edit to v. v is not modified.
	// Errors are *ir.UsageError values without a path; callers attach one.
	Apply(v ir.Value) (ir.Value, error)
}

type primitiveKind uint8

const (
	insertKind primitiveKind = iota + 1
	deleteKind
)

// TextOp inserts or deletes a run of characters. Positions count UTF-16
// code units, so offsets agree with editors built on UTF-16 strings.
type TextOp struct {
	kind primitiveKind
	pos  int
	str  string
}

func (TextOp) primitive() {}

// TextInsert returns an edit inserting str at pos.
func TextInsert(pos int, str string) TextOp {
	return TextOp{kind: insertKind, pos: pos, str: str}
}

// TextDelete returns an edit deleting str, which must be found at pos.
func TextDelete(pos int, str string) TextOp {
	return TextOp{kind: deleteKind, pos: pos, str: str}
}

func (t TextOp) IsInsert() bool { return t.kind == insertKind }
func (t TextOp) IsDelete() bool { return t.kind == deleteKind }
func (t TextOp) Pos() int       { return t.pos }

// Str returns the inserted or deleted characters.
func (t TextOp) Str() string { return t.str }

// Len returns the length of Str in UTF-16 code units.
func (t TextOp) Len() int { return len(utf16.Encode([]rune(t.str))) }

// Invert swaps insert and delete at the same position.
func (t TextOp) Invert() Primitive {
	if t.IsInsert() {
		return TextDelete(t.pos, t.str)
	}
	return TextInsert(t.pos, t.str)
}

// Apply edits the String v.
func (t TextOp) Apply(v ir.Value) (ir.Value, error) {
	s, ok := v.(ir.String)
	if !ok {
		return nil, ir.Errorf(ir.ErrCodeTypeMismatch, nil, "text edit on %s value", ir.KindOf(v))
	}

	units := utf16.Encode([]rune(string(s)))
	if t.pos < 0 || t.pos > len(units) || splitsSurrogate(units, t.pos) {
		return nil, ir.Errorf(ir.ErrCodeOutOfRange, nil,
			"text position %d outside string of length %d", t.pos, len(units))
	}

	payload := utf16.Encode([]rune(t.str))
	if t.IsInsert() {
		out := make([]uint16, 0, len(units)+len(payload))
		out = append(out, units[:t.pos]...)
		out = append(out, payload...)
		out = append(out, units[t.pos:]...)
		return ir.String(string(utf16.Decode(out))), nil
	}

	end := t.pos + len(payload)
	if end > len(units) {
		return nil, ir.Errorf(ir.ErrCodeOutOfRange, nil,
			"text delete [%d,%d) outside string of length %d", t.pos, end, len(units))
	}
	if string(utf16.Decode(units[t.pos:end])) != t.str {
		return nil, ir.Errorf(ir.ErrCodeContentMismatch, nil,
			"text delete expected %q at %d, found %q", t.str, t.pos, string(utf16.Decode(units[t.pos:end])))
	}
	out := make([]uint16, 0, len(units)-len(payload))
	out = append(out, units[:t.pos]...)
	out = append(out, units[end:]...)
	return ir.String(string(utf16.Decode(out))), nil
}

func (t TextOp) String() string {
	if t.IsInsert() {
		return fmt.Sprintf("t+ %d %q", t.pos, t.str)
	}
	return fmt.Sprintf("t- %d %q", t.pos, t.str)
}

// splitsSurrogate reports whether pos falls between the halves of a
// surrogate pair.
func splitsSurrogate(units []uint16, pos int) bool {
	if pos <= 0 || pos >= len(units) {
		return false
	}
	return utf16.IsSurrogate(rune(units[pos-1])) && units[pos-1] < 0xDC00 &&
		units[pos] >= 0xDC00 && units[pos] <= 0xDFFF
}

// ArrayOp inserts or deletes a single element of an array.
type ArrayOp struct {
	kind primitiveKind
	pos  int
	val  ir.Value
}

func (ArrayOp) primitive() {}

// ArrayInsert returns an edit inserting val at index pos.
func ArrayInsert(pos int, val ir.Value) ArrayOp {
	return ArrayOp{kind: insertKind, pos: pos, val: ir.Clone(val)}
}

// ArrayDelete returns an edit removing val, which must be found at index pos.
func ArrayDelete(pos int, val ir.Value) ArrayOp {
	return ArrayOp{kind: deleteKind, pos: pos, val: ir.Clone(val)}
}

func (a ArrayOp) IsInsert() bool { return a.kind == insertKind }
func (a ArrayOp) IsDelete() bool { return a.kind == deleteKind }
func (a ArrayOp) Pos() int       { return a.pos }

// Val returns a copy of the inserted or deleted element.
func (a ArrayOp) Val() ir.Value { return ir.Clone(a.val) }

// Invert swaps insert and delete at the same index.
func (a ArrayOp) Invert() Primitive {
	if a.IsInsert() {
		return ArrayDelete(a.pos, a.val)
	}
	return ArrayInsert(a.pos, a.val)
}

// Apply edits the Array v.
func (a ArrayOp) Apply(v ir.Value) (ir.Value, error) {
	arr, ok := v.(ir.Array)
	if !ok {
		return nil, ir.Errorf(ir.ErrCodeTypeMismatch, nil, "array edit on %s value", ir.KindOf(v))
	}

	if a.IsInsert() {
		if a.pos < 0 || a.pos > len(arr) {
			return nil, ir.Errorf(ir.ErrCodeOutOfRange, nil,
				"array index %d outside array of length %d", a.pos, len(arr))
		}
		out := make(ir.Array, 0, len(arr)+1)
		out = append(out, arr[:a.pos]...)
		out = append(out, ir.Clone(a.val))
		out = append(out, arr[a.pos:]...)
		return out, nil
	}

	if a.pos < 0 || a.pos >= len(arr) {
		return nil, ir.Errorf(ir.ErrCodeOutOfRange, nil,
			"array index %d outside array of length %d", a.pos, len(arr))
	}
	if !ir.Equal(arr[a.pos], a.val) {
		return nil, ir.Errorf(ir.ErrCodeContentMismatch, nil,
			"array delete expected %s at %d", ir.KindOf(a.val), a.pos)
	}
	out := make(ir.Array, 0, len(arr)-1)
	out = append(out, arr[:a.pos]...)
	out = append(out, arr[a.pos+1:]...)
	return out, nil
}

func (a ArrayOp) String() string {
	b, _ := ir.Marshal(a.val)
	if a.IsInsert() {
		return fmt.Sprintf("a+ %d %s", a.pos, b)
	}
	return fmt.Sprintf("a- %d %s", a.pos, b)
}

// EqualPrimitive reports whether a and b describe the same edit.
func EqualPrimitive(a, b Primitive) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case TextOp:
		bv, ok := b.(TextOp)
		return ok && av == bv
	case ArrayOp:
		bv, ok := b.(ArrayOp)
		return ok && av.kind == bv.kind && av.pos == bv.pos && ir.Equal(av.val, bv.val)
	default:
		return false
	}
}
