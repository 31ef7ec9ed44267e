package graph

import (
	"slices"

	"github.com/roach88/docmodel/internal/ir"
	"github.com/roach88/docmodel/internal/op"
)

// Overlay stages operations over a base Reader without touching it.
// Reads see the base with the staged operations applied on top.
type Overlay struct {
	base    Reader
	written map[string]ir.Object
	removed map[string]bool
	ops     []op.Operation
}

// NewOverlay returns an empty overlay over base.
func NewOverlay(base Reader) *Overlay {
	return &Overlay{
		base:    base,
		written: make(map[string]ir.Object),
		removed: make(map[string]bool),
	}
}

// Apply validates and stages o. On error nothing is staged.
func (ov *Overlay) Apply(o op.Operation) error {
	if _, err := execute(overlayTable{ov}, o); err != nil {
		return err
	}
	ov.ops = append(ov.ops, o)
	return nil
}

// Ops returns the staged operations in apply order.
func (ov *Overlay) Ops() []op.Operation {
	return slices.Clone(ov.ops)
}

// Empty reports whether nothing has been staged.
func (ov *Overlay) Empty() bool {
	return len(ov.ops) == 0
}

// Get returns a copy of the value at path as seen through the overlay.
func (ov *Overlay) Get(path ir.Path) ir.Value {
	if len(path) == 0 {
		return nil
	}
	node, ok := ov.lookup(path.NodeID())
	if !ok {
		return nil
	}
	return ir.Clone(lookupIn(node, path[1:]))
}

// Node returns a copy of the node data for id.
func (ov *Overlay) Node(id string) (ir.Object, bool) {
	node, ok := ov.lookup(id)
	if !ok {
		return nil, false
	}
	return ir.CloneObject(node), true
}

// Has reports whether id exists in the overlay view.
func (ov *Overlay) Has(id string) bool {
	_, ok := ov.lookup(id)
	return ok
}

// IDs returns every visible node id in sorted order.
func (ov *Overlay) IDs() []string {
	var ids []string
	for _, id := range ov.base.IDs() {
		if !ov.removed[id] {
			if _, ok := ov.written[id]; !ok {
				ids = append(ids, id)
			}
		}
	}
	for id := range ov.written {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of visible nodes.
func (ov *Overlay) Len() int {
	return len(ov.IDs())
}

func (ov *Overlay) lookup(id string) (ir.Object, bool) {
	if node, ok := ov.written[id]; ok {
		return node, true
	}
	if ov.removed[id] {
		return nil, false
	}
	return ov.base.Node(id)
}

// overlayTable adapts Overlay to nodeTable.
type overlayTable struct{ ov *Overlay }

func (t overlayTable) lookup(id string) (ir.Object, bool) { return t.ov.lookup(id) }

func (t overlayTable) put(id string, node ir.Object) {
	t.ov.written[id] = node
	delete(t.ov.removed, id)
}

func (t overlayTable) remove(id string) {
	delete(t.ov.written, id)
	t.ov.removed[id] = true
}
