package graph

import (
	"fmt"
	"slices"
	"time"

	"github.com/roach88/docmodel/internal/ir"
	"github.com/roach88/docmodel/internal/op"
)

// Mode selects how an apply maintains indexes.
type Mode uint8

const (
	// Live updates every index incrementally as the operation lands.
	Live Mode = iota

	// Batched leaves indexes untouched and marks them stale. Forward
	// references (an annotation created before the node it points at)
	// are safe in this mode.
	Batched
)

func (m Mode) String() string {
	if m == Batched {
		return "batched"
	}
	return "live"
}

// Reader is the read surface shared by Store and Overlay.
type Reader interface {
	// Get returns a copy of the node or property at path, or nil if absent.
	Get(path ir.Path) ir.Value

	// Node returns a copy of the node data for id.
	Node(id string) (ir.Object, bool)

	// Has reports whether a node with id exists.
	Has(id string) bool

	// IDs returns all node ids in sorted order.
	IDs() []string

	// Len returns the number of nodes.
	Len() int
}

// Listener observes every applied operation, in apply order.
type Listener func(o op.Operation)

type listenerEntry struct {
	id int
	fn Listener
}

// Store is the authoritative node graph.
type Store struct {
	nodes map[string]ir.Object

	indexes    map[string]Index
	indexOrder []string
	stale      map[string]bool

	listeners  []listenerEntry
	listenerID int
}

// NewStore creates an empty store with no indexes.
func NewStore() *Store {
	return &Store{
		nodes:   make(map[string]ir.Object),
		indexes: make(map[string]Index),
		stale:   make(map[string]bool),
	}
}

// Get returns a copy of the node ([id]) or property ([id, key, ...]) at path.
// It returns nil when anything along the path is absent.
func (s *Store) Get(path ir.Path) ir.Value {
	if len(path) == 0 {
		return nil
	}
	node, ok := s.nodes[path.NodeID()]
	if !ok {
		return nil
	}
	return ir.Clone(lookupIn(node, path[1:]))
}

// Node returns a copy of the node data for id.
func (s *Store) Node(id string) (ir.Object, bool) {
	node, ok := s.nodes[id]
	if !ok {
		return nil, false
	}
	return ir.CloneObject(node), true
}

// Has reports whether a node with id exists.
func (s *Store) Has(id string) bool {
	_, ok := s.nodes[id]
	return ok
}

// IDs returns all node ids in sorted order.
func (s *Store) IDs() []string {
	ids := make([]string, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of nodes.
func (s *Store) Len() int {
	return len(s.nodes)
}

// Nodes returns a copy of every node keyed by id.
func (s *Store) Nodes() map[string]ir.Object {
	out := make(map[string]ir.Object, len(s.nodes))
	for id, node := range s.nodes {
		out[id] = ir.CloneObject(node)
	}
	return out
}

// OnApplied registers fn to run after every applied operation.
// The returned function removes the registration.
func (s *Store) OnApplied(fn Listener) (remove func()) {
	s.listenerID++
	id := s.listenerID
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: fn})
	return func() {
		s.listeners = slices.DeleteFunc(s.listeners, func(e listenerEntry) bool { return e.id == id })
	}
}

// AddIndex registers idx under name and builds it from current contents.
func (s *Store) AddIndex(name string, idx Index) error {
	if _, exists := s.indexes[name]; exists {
		return fmt.Errorf("index %q already registered", name)
	}
	s.indexes[name] = idx
	s.indexOrder = append(s.indexOrder, name)
	s.rebuild(name)
	return nil
}

// Index returns the index registered under name, or nil.
func (s *Store) Index(name string) Index {
	return s.indexes[name]
}

// Stale reports whether any index awaits a rebuild.
func (s *Store) Stale() bool {
	return len(s.stale) > 0
}

// Apply executes o. On error the store is unchanged and no listener runs.
//
// A Live apply first rebuilds indexes left stale by earlier batched applies,
// then updates them with o.
func (s *Store) Apply(o op.Operation, mode Mode) error {
	if mode == Live {
		s.Reindex()
	}

	node, err := execute(storeTable{s}, o)
	if err != nil {
		return err
	}
	OpsApplied.WithLabelValues(o.Kind().String(), mode.String()).Inc()

	if mode == Live {
		s.updateIndexes(o, node)
	} else {
		for _, name := range s.indexOrder {
			s.stale[name] = true
		}
	}

	for _, l := range slices.Clone(s.listeners) {
		l.fn(o)
	}
	return nil
}

// ApplyAll applies ops in order and stops at the first error. Operations
// before the failing one stay applied.
func (s *Store) ApplyAll(ops []op.Operation, mode Mode) error {
	for i, o := range ops {
		if err := s.Apply(o, mode); err != nil {
			return fmt.Errorf("apply op %d (%s): %w", i, o, err)
		}
	}
	return nil
}

// Import runs fn with a batched applier and then rebuilds every index once.
// Indexes are rebuilt even when fn fails, so they always match the contents.
func (s *Store) Import(fn func(apply func(op.Operation) error) error) error {
	err := fn(func(o op.Operation) error {
		return s.Apply(o, Batched)
	})
	s.Reindex()
	return err
}

// Reindex rebuilds every stale index from current contents.
func (s *Store) Reindex() {
	if len(s.stale) == 0 {
		return
	}
	for _, name := range s.indexOrder {
		if s.stale[name] {
			s.rebuild(name)
		}
	}
}

// Clear removes every node and resets all indexes. Listeners do not run.
func (s *Store) Clear() {
	s.nodes = make(map[string]ir.Object)
	for _, name := range s.indexOrder {
		s.rebuild(name)
	}
}

func (s *Store) rebuild(name string) {
	start := time.Now()
	s.indexes[name].Reset(s)
	delete(s.stale, name)
	ReindexCount.WithLabelValues(name).Inc()
	ReindexDuration.WithLabelValues(name).Observe(float64(time.Since(start).Milliseconds()))
}

func (s *Store) updateIndexes(o op.Operation, node ir.Object) {
	for _, name := range s.indexOrder {
		idx := s.indexes[name]
		switch o.Kind() {
		case op.KindCreate:
			if idx.Select(node) {
				idx.Create(node)
			}
		case op.KindDelete:
			if idx.Select(node) {
				idx.Delete(node)
			}
		default:
			// A property change can move a node in or out of an index.
			idx.Update(node, o)
		}
	}
}

// storeTable adapts Store to nodeTable.
type storeTable struct{ s *Store }

func (t storeTable) lookup(id string) (ir.Object, bool) {
	node, ok := t.s.nodes[id]
	return node, ok
}

func (t storeTable) put(id string, node ir.Object) { t.s.nodes[id] = node }
func (t storeTable) remove(id string)              { delete(t.s.nodes, id) }
