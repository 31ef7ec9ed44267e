package graph

import (
	"slices"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/roach88/docmodel/internal/ir"
	"github.com/roach88/docmodel/internal/op"
)

// Index is a derived view the Store keeps consistent with its nodes.
//
// Select filters which nodes reach Create and Delete. Update sees every
// property change so an index can drop a node that no longer qualifies. Reset
// discards all state and rebuilds from r; it must not depend on the order
// nodes were created in.
type Index interface {
	Select(node ir.Object) bool
	Create(node ir.Object)
	Delete(node ir.Object)
	Update(node ir.Object, o op.Operation)
	Reset(r Reader)
}

// Built-in index names.
const (
	TypeIndexName       = "type"
	AnnotationIndexName = "annotations"
	AnchorIndexName     = "container-annotation-anchors"
)

// TypeIndex maps node type to the set of node ids of that type.
type TypeIndex struct {
	byType map[string]mapset.Set[string]
}

// NewTypeIndex returns an empty type index.
func NewTypeIndex() *TypeIndex {
	return &TypeIndex{byType: make(map[string]mapset.Set[string])}
}

func (ti *TypeIndex) Select(node ir.Object) bool {
	return node.Type() != ""
}

func (ti *TypeIndex) Create(node ir.Object) {
	set, ok := ti.byType[node.Type()]
	if !ok {
		set = mapset.NewThreadUnsafeSet[string]()
		ti.byType[node.Type()] = set
	}
	set.Add(node.ID())
}

func (ti *TypeIndex) Delete(node ir.Object) {
	set, ok := ti.byType[node.Type()]
	if !ok {
		return
	}
	set.Remove(node.ID())
	if set.Cardinality() == 0 {
		delete(ti.byType, node.Type())
	}
}

// Update is a no-op: node types do not change after creation.
func (ti *TypeIndex) Update(ir.Object, op.Operation) {}

func (ti *TypeIndex) Reset(r Reader) {
	ti.byType = make(map[string]mapset.Set[string])
	for _, id := range r.IDs() {
		if node, ok := r.Node(id); ok && ti.Select(node) {
			ti.Create(node)
		}
	}
}

// Get returns the ids of all nodes of type typ, sorted.
func (ti *TypeIndex) Get(typ string) []string {
	set, ok := ti.byType[typ]
	if !ok {
		return nil
	}
	ids := set.ToSlice()
	slices.Sort(ids)
	return ids
}

// Has reports whether node id is indexed under typ.
func (ti *TypeIndex) Has(typ, id string) bool {
	set, ok := ti.byType[typ]
	return ok && set.Contains(id)
}

// Types returns every indexed type, sorted.
func (ti *TypeIndex) Types() []string {
	types := make([]string, 0, len(ti.byType))
	for t := range ti.byType {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// DefaultIndexes registers the built-in indexes on s.
func DefaultIndexes(s *Store) error {
	if err := s.AddIndex(TypeIndexName, NewTypeIndex()); err != nil {
		return err
	}
	if err := s.AddIndex(AnnotationIndexName, NewAnnotationIndex()); err != nil {
		return err
	}
	return s.AddIndex(AnchorIndexName, NewAnchorIndex())
}
