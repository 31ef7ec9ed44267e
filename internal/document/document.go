package document

import (
	"fmt"
	"slices"

	"github.com/roach88/docmodel/internal/change"
	"github.com/roach88/docmodel/internal/graph"
	"github.com/roach88/docmodel/internal/ir"
	"github.com/roach88/docmodel/internal/op"
	"github.com/roach88/docmodel/internal/schema"
	"github.com/roach88/docmodel/internal/selection"
)

// ChangeInfo describes how a change reached the document.
type ChangeInfo struct {
	// Silent changes are applied without notifying listeners.
	Silent bool
	// Replay is set for undo and redo.
	Replay bool
	// Remote is set for changes received from a hub.
	Remote bool
	// Meta carries caller-supplied context.
	Meta ir.Object
}

// Listener receives committed changes.
type Listener func(ch *change.Change, info ChangeInfo, doc *Document)

type subscription struct {
	id int
	fn Listener
}

// Document is a schema-bound node graph.
type Document struct {
	schema *schema.Schema
	store  *graph.Store
	proxy  *PathProxy

	subs   []subscription
	nextID int
}

// New returns an empty document for s with the default indexes.
func New(s *schema.Schema) *Document {
	store := graph.NewStore()
	if err := graph.DefaultIndexes(store); err != nil {
		panic(fmt.Sprintf("document: default indexes: %v", err))
	}
	return &Document{
		schema: s,
		store:  store,
		proxy:  newPathProxy(),
	}
}

// Schema returns the document schema.
func (d *Document) Schema() *schema.Schema { return d.schema }

// Graph returns the underlying node store.
func (d *Document) Graph() *graph.Store { return d.store }

// Proxy returns the path-scoped listener registry.
func (d *Document) Proxy() *PathProxy { return d.proxy }

// Get returns a copy of the value at path, or nil.
func (d *Document) Get(path ir.Path) ir.Value { return d.store.Get(path) }

// Node returns a copy of the node data for id.
func (d *Document) Node(id string) (ir.Object, bool) { return d.store.Node(id) }

// Has reports whether a node with id exists.
func (d *Document) Has(id string) bool { return d.store.Has(id) }

// IDs returns every node id in sorted order.
func (d *Document) IDs() []string { return d.store.IDs() }

// Len returns the number of nodes.
func (d *Document) Len() int { return d.store.Len() }

// Nodes returns a copy of every node keyed by id.
func (d *Document) Nodes() map[string]ir.Object { return d.store.Nodes() }

// Index returns the index registered under name, or nil.
func (d *Document) Index(name string) graph.Index { return d.store.Index(name) }

// Types returns the node type index.
func (d *Document) Types() *graph.TypeIndex {
	return d.store.Index(graph.TypeIndexName).(*graph.TypeIndex)
}

// Annotations returns the property annotation index.
func (d *Document) Annotations() *graph.AnnotationIndex {
	return d.store.Index(graph.AnnotationIndexName).(*graph.AnnotationIndex)
}

// Anchors returns the container annotation anchor index.
func (d *Document) Anchors() *graph.AnchorIndex {
	return d.store.Index(graph.AnchorIndexName).(*graph.AnchorIndex)
}

// CreateSelection attaches desc to the document. A nil desc yields the
// null selection.
func (d *Document) CreateSelection(desc *selection.Descriptor) (selection.Selection, error) {
	return selection.Create(d, desc)
}

// Check validates o against the schema as it would apply to r. Structural
// checks (missing nodes, content mismatches) are left to the graph.
func (d *Document) Check(r graph.Reader, o op.Operation) error {
	switch o.Kind() {
	case op.KindCreate:
		return d.schema.Validate(o.Node())
	case op.KindSet:
		node, ok := r.Node(o.Path().NodeID())
		if !ok {
			return nil
		}
		return d.schema.ValidateProperty(node.Type(), o.Path(), o.Value())
	case op.KindUpdate:
		node, ok := r.Node(o.Path().NodeID())
		if !ok {
			return nil
		}
		current := r.Get(o.Path())
		if current == nil {
			return nil
		}
		return d.schema.ValidateProperty(node.Type(), o.Path(), current)
	default:
		return nil
	}
}

// Apply validates and executes ops in order with live indexing. On error
// the operations before the failing one stay applied.
func (d *Document) Apply(ops []op.Operation) error {
	for i, o := range ops {
		if err := d.Check(d.store, o); err != nil {
			return fmt.Errorf("apply op %d (%s): %w", i, o, err)
		}
		if err := d.store.Apply(o, graph.Live); err != nil {
			return fmt.Errorf("apply op %d (%s): %w", i, o, err)
		}
	}
	return nil
}

// Subscribe registers fn for committed changes and returns a function that
// removes it.
func (d *Document) Subscribe(fn Listener) (unsubscribe func()) {
	id := d.nextID
	d.nextID++
	d.subs = append(d.subs, subscription{id: id, fn: fn})
	return func() {
		d.subs = slices.DeleteFunc(d.subs, func(s subscription) bool { return s.id == id })
	}
}

// Notify publishes ch. Path listeners run first, then subscribers in
// registration order. Silent changes are not published.
func (d *Document) Notify(ch *change.Change, info ChangeInfo) {
	if info.Silent {
		return
	}
	d.proxy.dispatch(ch, info)
	for _, s := range slices.Clone(d.subs) {
		s.fn(ch, info, d)
	}
}
