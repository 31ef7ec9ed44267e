// Package selection models the editor selections stored in change context.
//
// A Descriptor is the plain form (as found in a change's before/after
// object); Create attaches it to a document. A nil descriptor yields the
// Null selection.
package selection

import (
	"errors"
	"fmt"
	"unicode/utf16"

	"github.com/roach88/docmodel/internal/ir"
)

// ErrUnsupportedSelection is returned for an unknown selection type.
var ErrUnsupportedSelection = errors.New("unsupported selection type")

// Selection types.
const (
	TypeProperty  = "property"
	TypeContainer = "container"
	TypeTable     = "table"
	TypeNull      = "null"
)

// Doc is the read surface a selection is attached to.
type Doc interface {
	Get(path ir.Path) ir.Value
	Has(id string) bool
}

// Descriptor is the detached description of a selection.
type Descriptor struct {
	Type string `json:"type" yaml:"type"`

	// Property and container selections.
	Path        ir.Path `json:"path,omitempty" yaml:"path,omitempty"`
	StartOffset int     `json:"startOffset,omitempty" yaml:"start_offset,omitempty"`
	EndOffset   int     `json:"endOffset,omitempty" yaml:"end_offset,omitempty"`
	Reverse     bool    `json:"reverse,omitempty" yaml:"reverse,omitempty"`

	// Container selections.
	ContainerID string  `json:"containerId,omitempty" yaml:"container_id,omitempty"`
	EndPath     ir.Path `json:"endPath,omitempty" yaml:"end_path,omitempty"`

	// Table selections.
	TableID  string `json:"tableId,omitempty" yaml:"table_id,omitempty"`
	StartRow int    `json:"startRow,omitempty" yaml:"start_row,omitempty"`
	StartCol int    `json:"startCol,omitempty" yaml:"start_col,omitempty"`
	EndRow   int    `json:"endRow,omitempty" yaml:"end_row,omitempty"`
	EndCol   int    `json:"endCol,omitempty" yaml:"end_col,omitempty"`
}

// Selection is an attached selection.
type Selection interface {
	Type() string
	IsNull() bool
	IsCollapsed() bool
	Document() Doc
	ToObject() ir.Object
}

// Create attaches desc to doc. A nil desc yields Null.
func Create(doc Doc, desc *Descriptor) (Selection, error) {
	if desc == nil {
		return Null{doc: doc}, nil
	}
	if desc.StartOffset < 0 || desc.EndOffset < 0 {
		return nil, ir.Errorf(ir.ErrCodeOutOfRange, desc.Path, "negative selection offset")
	}

	switch desc.Type {
	case TypeNull:
		return Null{doc: doc}, nil

	case TypeProperty:
		if len(desc.Path) < 2 {
			return nil, ir.Errorf(ir.ErrCodeUnsupported, desc.Path, "property selection needs a property path")
		}
		if doc.Get(desc.Path) == nil {
			return nil, ir.Errorf(ir.ErrCodeMissingProperty, desc.Path, "selected property does not exist")
		}
		start, end := desc.StartOffset, desc.EndOffset
		if end < start {
			start, end = end, start
		}
		return &Property{doc: doc, path: desc.Path.Clone(), start: start, end: end, reverse: desc.Reverse}, nil

	case TypeContainer:
		if !doc.Has(desc.ContainerID) {
			return nil, ir.Errorf(ir.ErrCodeMissingNode, ir.Path{desc.ContainerID}, "container does not exist")
		}
		if len(desc.Path) < 2 {
			return nil, ir.Errorf(ir.ErrCodeUnsupported, desc.Path, "container selection needs a start path")
		}
		endPath := desc.EndPath
		if len(endPath) == 0 {
			endPath = desc.Path
		}
		return &Container{
			doc:         doc,
			containerID: desc.ContainerID,
			startPath:   desc.Path.Clone(),
			startOffset: desc.StartOffset,
			endPath:     endPath.Clone(),
			endOffset:   desc.EndOffset,
			reverse:     desc.Reverse,
		}, nil

	case TypeTable:
		if !doc.Has(desc.TableID) {
			return nil, ir.Errorf(ir.ErrCodeMissingNode, ir.Path{desc.TableID}, "table does not exist")
		}
		return &Table{
			doc:      doc,
			tableID:  desc.TableID,
			startRow: desc.StartRow, startCol: desc.StartCol,
			endRow: desc.EndRow, endCol: desc.EndCol,
		}, nil

	default:
		return nil, fmt.Errorf("%w: %q: %w", ErrUnsupportedSelection, desc.Type,
			ir.Errorf(ir.ErrCodeUnsupported, nil, "selection type %q", desc.Type))
	}
}

// FromObject reads a descriptor from its ToObject form. A nil or Null
// object yields a nil descriptor.
func FromObject(obj ir.Object) (*Descriptor, error) {
	if len(obj) == 0 {
		return nil, nil
	}
	typ, ok := obj.StringAt("type")
	if !ok {
		return nil, fmt.Errorf("selection without type")
	}
	d := &Descriptor{Type: typ}
	d.Path, _ = obj.PathAt("path")
	d.EndPath, _ = obj.PathAt("endPath")
	d.ContainerID, _ = obj.StringAt("containerId")
	d.TableID, _ = obj.StringAt("tableId")
	if b, ok := obj["reverse"].(ir.Bool); ok {
		d.Reverse = bool(b)
	}
	for key, dst := range map[string]*int{
		"startOffset": &d.StartOffset, "endOffset": &d.EndOffset,
		"startRow": &d.StartRow, "startCol": &d.StartCol,
		"endRow": &d.EndRow, "endCol": &d.EndCol,
	} {
		if n, ok := obj.IntAt(key); ok {
			*dst = int(n)
		}
	}
	return d, nil
}

// Null is the empty selection.
type Null struct{ doc Doc }

func (Null) Type() string        { return TypeNull }
func (Null) IsNull() bool        { return true }
func (Null) IsCollapsed() bool   { return true }
func (n Null) Document() Doc     { return n.doc }
func (Null) ToObject() ir.Object { return ir.Object{"type": ir.String(TypeNull)} }

// Property selects a range of one text property.
type Property struct {
	doc     Doc
	path    ir.Path
	start   int
	end     int
	reverse bool
}

func (p *Property) Type() string      { return TypeProperty }
func (p *Property) IsNull() bool      { return false }
func (p *Property) IsCollapsed() bool { return p.start == p.end }
func (p *Property) Document() Doc     { return p.doc }
func (p *Property) Path() ir.Path     { return p.path.Clone() }
func (p *Property) Start() int        { return p.start }
func (p *Property) End() int          { return p.end }

func (p *Property) ToObject() ir.Object {
	obj := ir.Object{
		"type":        ir.String(TypeProperty),
		"path":        p.path.Array(),
		"startOffset": ir.Int(p.start),
		"endOffset":   ir.Int(p.end),
	}
	if p.reverse {
		obj["reverse"] = ir.Bool(true)
	}
	return obj
}

// Text returns the selected characters, or "" when the property is not a
// string or the range no longer fits it.
func (p *Property) Text() string {
	s, ok := p.doc.Get(p.path).(ir.String)
	if !ok {
		return ""
	}
	units := utf16.Encode([]rune(string(s)))
	if p.end > len(units) {
		return ""
	}
	return string(utf16.Decode(units[p.start:p.end]))
}

// Container selects a range spanning nodes of a container.
type Container struct {
	doc         Doc
	containerID string
	startPath   ir.Path
	startOffset int
	endPath     ir.Path
	endOffset   int
	reverse     bool
}

func (c *Container) Type() string        { return TypeContainer }
func (c *Container) IsNull() bool        { return false }
func (c *Container) Document() Doc       { return c.doc }
func (c *Container) ContainerID() string { return c.containerID }

func (c *Container) IsCollapsed() bool {
	return c.startPath.Equal(c.endPath) && c.startOffset == c.endOffset
}

func (c *Container) ToObject() ir.Object {
	obj := ir.Object{
		"type":        ir.String(TypeContainer),
		"containerId": ir.String(c.containerID),
		"path":        c.startPath.Array(),
		"startOffset": ir.Int(c.startOffset),
		"endPath":     c.endPath.Array(),
		"endOffset":   ir.Int(c.endOffset),
	}
	if c.reverse {
		obj["reverse"] = ir.Bool(true)
	}
	return obj
}

// Table selects a rectangle of table cells.
type Table struct {
	doc                Doc
	tableID            string
	startRow, startCol int
	endRow, endCol     int
}

func (t *Table) Type() string    { return TypeTable }
func (t *Table) IsNull() bool    { return false }
func (t *Table) Document() Doc   { return t.doc }
func (t *Table) TableID() string { return t.tableID }

func (t *Table) IsCollapsed() bool {
	return t.startRow == t.endRow && t.startCol == t.endCol
}

func (t *Table) ToObject() ir.Object {
	return ir.Object{
		"type":     ir.String(TypeTable),
		"tableId":  ir.String(t.tableID),
		"startRow": ir.Int(t.startRow),
		"startCol": ir.Int(t.startCol),
		"endRow":   ir.Int(t.endRow),
		"endCol":   ir.Int(t.endCol),
	}
}
