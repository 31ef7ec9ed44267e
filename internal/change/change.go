package change

import (
	"slices"
	"time"

	"github.com/roach88/docmodel/internal/ir"
	"github.com/roach88/docmodel/internal/op"
)

// Change is an ordered bundle of operations with before/after context.
//
// Change is not safe for concurrent use; the owning session serializes
// access.
type Change struct {
	id        string
	ops       []op.Operation
	before    ir.Object
	after     ir.Object
	state     State
	timestamp time.Time
	userID    string
	data      ir.Object
	frozen    bool
	gen       IDGenerator

	created map[string]ir.Object
	deleted map[string]ir.Object
	updated map[string][]op.Operation
	paths   []ir.Path // updated paths in first-touch order
}

// Option configures a new Change.
type Option func(*Change)

// WithIDGenerator sets the generator used for the change id and for the
// ids of changes derived from it by Invert.
func WithIDGenerator(g IDGenerator) Option {
	return func(c *Change) { c.gen = g }
}

// WithID sets an explicit id.
func WithID(id string) Option {
	return func(c *Change) { c.id = id }
}

// WithUserID records the author of the change.
func WithUserID(userID string) Option {
	return func(c *Change) { c.userID = userID }
}

// WithData attaches free-form metadata, copied.
func WithData(data ir.Object) Option {
	return func(c *Change) { c.data = ir.CloneObject(data) }
}

// New builds a Provisional change from ops and before/after context.
// Inputs are copied.
func New(ops []op.Operation, before, after ir.Object, opts ...Option) *Change {
	c := &Change{
		ops:    slices.Clone(ops),
		before: ir.CloneObject(before),
		after:  ir.CloneObject(after),
		state:  Provisional,
		gen:    UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.id == "" {
		c.id = c.gen.Generate()
	}
	c.index()
	return c
}

// index computes the created, deleted, and updated tables.
// A delete cancels earlier creates and updates of the same node; a create
// cancels an earlier delete.
func (c *Change) index() {
	c.created = make(map[string]ir.Object)
	c.deleted = make(map[string]ir.Object)
	c.updated = make(map[string][]op.Operation)
	c.paths = nil

	for _, o := range c.ops {
		switch o.Kind() {
		case op.KindCreate:
			id := o.Path().NodeID()
			c.created[id] = o.Node()
			delete(c.deleted, id)
		case op.KindDelete:
			id := o.Path().NodeID()
			delete(c.created, id)
			c.dropUpdates(id)
			c.deleted[id] = o.Node()
		case op.KindSet, op.KindUpdate:
			path := o.Path()
			key := path.Key()
			if _, seen := c.updated[key]; !seen {
				c.paths = append(c.paths, path)
			}
			c.updated[key] = append(c.updated[key], o)
		}
	}
}

func (c *Change) dropUpdates(id string) {
	c.paths = slices.DeleteFunc(c.paths, func(p ir.Path) bool {
		if p.NodeID() == id {
			delete(c.updated, p.Key())
			return true
		}
		return false
	})
}

// ID returns the change id.
func (c *Change) ID() string { return c.id }

// Ops returns the operations in order.
func (c *Change) Ops() []op.Operation { return slices.Clone(c.ops) }

// Len returns the number of operations.
func (c *Change) Len() int { return len(c.ops) }

// Before returns a copy of the context captured before the change.
func (c *Change) Before() ir.Object { return ir.CloneObject(c.before) }

// After returns a copy of the context after the change.
func (c *Change) After() ir.Object { return ir.CloneObject(c.after) }

// State returns the lifecycle state.
func (c *Change) State() State { return c.state }

// Timestamp returns the commit time; zero until stamped.
func (c *Change) Timestamp() time.Time { return c.timestamp }

// UserID returns the author, if known.
func (c *Change) UserID() string { return c.userID }

// Data returns a copy of the attached metadata.
func (c *Change) Data() ir.Object { return ir.CloneObject(c.data) }

// Frozen reports whether the change was rebuilt from its wire form.
func (c *Change) Frozen() bool { return c.frozen }

func (c *Change) IsProvisional() bool  { return c.state == Provisional }
func (c *Change) IsFinal() bool        { return c.state >= Final }
func (c *Change) IsPending() bool      { return c.state == Pending }
func (c *Change) IsAcknowledged() bool { return c.state == Acknowledged }

// Advance moves the change forward to s. Advancing to the current state
// is a no-op; moving backward is a usage error.
func (c *Change) Advance(s State) error {
	if !s.Valid() {
		return ir.Errorf(ir.ErrCodeInvalidState, nil, "change %s: invalid state %d", c.id, s)
	}
	if s < c.state {
		return ir.Errorf(ir.ErrCodeInvalidState, nil, "change %s: cannot move from %s back to %s", c.id, c.state, s)
	}
	c.state = s
	return nil
}

// Stamp records the commit time.
func (c *Change) Stamp(t time.Time) error {
	if c.frozen {
		return ir.Errorf(ir.ErrCodeInvalidState, nil, "change %s is frozen", c.id)
	}
	c.timestamp = t
	return nil
}

// Fold appends ops and replaces the after context. Compressors use it to
// absorb a following change; only Provisional, unfrozen changes accept it.
func (c *Change) Fold(ops []op.Operation, after ir.Object) error {
	if err := c.checkMutable(); err != nil {
		return err
	}
	c.ops = append(c.ops, ops...)
	c.after = ir.CloneObject(after)
	c.index()
	return nil
}

// Replace swaps the operations and after context wholesale. Compressors
// use it to rewrite a change as one wider operation; the same rules as Fold
// apply.
func (c *Change) Replace(ops []op.Operation, after ir.Object) error {
	if err := c.checkMutable(); err != nil {
		return err
	}
	c.ops = slices.Clone(ops)
	c.after = ir.CloneObject(after)
	c.index()
	return nil
}

// SetUserID records the author of an unfrozen change.
func (c *Change) SetUserID(userID string) error {
	if c.frozen {
		return ir.Errorf(ir.ErrCodeInvalidState, nil, "change %s is frozen", c.id)
	}
	c.userID = userID
	return nil
}

func (c *Change) checkMutable() error {
	if c.frozen {
		return ir.Errorf(ir.ErrCodeInvalidState, nil, "change %s is frozen", c.id)
	}
	if c.state != Provisional {
		return ir.Errorf(ir.ErrCodeInvalidState, nil, "change %s is %s, only provisional changes can be folded", c.id, c.state)
	}
	return nil
}

// Invert returns a new Provisional change that undoes c: its operations
// are c's inverted in reverse order and before/after are swapped.
func (c *Change) Invert() *Change {
	return New(op.Reverse(c.ops), c.after, c.before, WithIDGenerator(c.gen))
}

// IsAffected reports whether a set or update in the change touched path.
func (c *Change) IsAffected(path ir.Path) bool {
	_, ok := c.updated[path.Key()]
	return ok
}

// IsUpdated is an alias of IsAffected.
func (c *Change) IsUpdated(path ir.Path) bool {
	return c.IsAffected(path)
}

// Updated returns the sets and updates applied to path, in order.
func (c *Change) Updated(path ir.Path) []op.Operation {
	return slices.Clone(c.updated[path.Key()])
}

// Created returns the nodes created and not deleted again by the change.
func (c *Change) Created() map[string]ir.Object {
	return cloneNodes(c.created)
}

// Deleted returns the last known data of nodes the change deleted.
func (c *Change) Deleted() map[string]ir.Object {
	return cloneNodes(c.deleted)
}

// Traverse calls fn for every updated path in first-touch order.
func (c *Change) Traverse(fn func(path ir.Path, ops []op.Operation)) {
	for _, p := range c.paths {
		fn(p.Clone(), slices.Clone(c.updated[p.Key()]))
	}
}

func cloneNodes(m map[string]ir.Object) map[string]ir.Object {
	out := make(map[string]ir.Object, len(m))
	for id, node := range m {
		out[id] = ir.CloneObject(node)
	}
	return out
}
