package document

import (
	"slices"

	"github.com/roach88/docmodel/internal/change"
	"github.com/roach88/docmodel/internal/ir"
	"github.com/roach88/docmodel/internal/op"
)

// PathListener receives changes that touch a connected path.
type PathListener func(ch *change.Change, info ChangeInfo)

type pathBinding struct {
	id   int
	path ir.Path
	fn   PathListener
}

// PathProxy routes changes to listeners bound to specific paths. A property
// path fires when a set or update touched it; a node path fires when the
// node was created, deleted, or had any property updated.
type PathProxy struct {
	bindings []pathBinding
	nextID   int
}

func newPathProxy() *PathProxy {
	return &PathProxy{}
}

// Connect binds fn to path and returns a function that removes it.
func (p *PathProxy) Connect(path ir.Path, fn PathListener) (disconnect func()) {
	id := p.nextID
	p.nextID++
	p.bindings = append(p.bindings, pathBinding{id: id, path: path.Clone(), fn: fn})
	return func() {
		p.bindings = slices.DeleteFunc(p.bindings, func(b pathBinding) bool { return b.id == id })
	}
}

// Len returns the number of connected listeners.
func (p *PathProxy) Len() int { return len(p.bindings) }

func (p *PathProxy) dispatch(ch *change.Change, info ChangeInfo) {
	if len(p.bindings) == 0 {
		return
	}
	created, deleted := ch.Created(), ch.Deleted()
	touched := make(map[string]bool)
	ch.Traverse(func(path ir.Path, _ []op.Operation) {
		touched[path.NodeID()] = true
	})

	for _, b := range slices.Clone(p.bindings) {
		if affects(b.path, ch, created, deleted, touched) {
			b.fn(ch, info)
		}
	}
}

func affects(path ir.Path, ch *change.Change, created, deleted map[string]ir.Object, touched map[string]bool) bool {
	if len(path) == 0 {
		return false
	}
	if path.IsNode() {
		id := path.NodeID()
		_, c := created[id]
		_, d := deleted[id]
		return c || d || touched[id]
	}
	return ch.IsAffected(path)
}
