package graph

import (
	"errors"

	"github.com/roach88/docmodel/internal/ir"
	"github.com/roach88/docmodel/internal/op"
)

// nodeTable is the storage seam shared by Store and Overlay.
// lookup may return shared data; execute never mutates it.
type nodeTable interface {
	lookup(id string) (ir.Object, bool)
	put(id string, node ir.Object)
	remove(id string)
}

// execute applies o to t after validating it against the current contents.
// It returns the node data indexes need: the created node, the removed node,
// or the node after a property change.
func execute(t nodeTable, o op.Operation) (ir.Object, error) {
	path := o.Path()
	if len(path) == 0 {
		return nil, ir.Errorf(ir.ErrCodeUnsupported, path, "%s with empty path", o.Kind())
	}
	id := path.NodeID()

	switch o.Kind() {
	case op.KindCreate:
		if !path.IsNode() {
			return nil, ir.Errorf(ir.ErrCodeUnsupported, path, "create needs a node path")
		}
		node := o.Node()
		if node == nil {
			return nil, ir.Errorf(ir.ErrCodeTypeMismatch, path, "create without node data")
		}
		if node.ID() != id {
			return nil, ir.Errorf(ir.ErrCodeSchemaViolation, path, "node id %q does not match path", node.ID())
		}
		if _, exists := t.lookup(id); exists {
			return nil, ir.Errorf(ir.ErrCodeDuplicateNode, path, "node %q already exists", id)
		}
		t.put(id, node)
		return node, nil

	case op.KindDelete:
		if !path.IsNode() {
			return nil, ir.Errorf(ir.ErrCodeUnsupported, path, "delete needs a node path")
		}
		node, exists := t.lookup(id)
		if !exists {
			return nil, ir.Errorf(ir.ErrCodeMissingNode, path, "node %q does not exist", id)
		}
		if !ir.Equal(node, o.Node()) {
			return nil, ir.Errorf(ir.ErrCodeContentMismatch, path, "delete payload does not match node %q", id)
		}
		t.remove(id)
		return node, nil

	case op.KindSet, op.KindUpdate:
		if path.IsNode() {
			return nil, ir.Errorf(ir.ErrCodeUnsupported, path, "%s needs a property path", o.Kind())
		}
		switch path[1] {
		case "id":
			return nil, ir.Errorf(ir.ErrCodeSchemaViolation, path, "node id is immutable")
		case "type":
			return nil, ir.Errorf(ir.ErrCodeSchemaViolation, path, "node type is immutable")
		}
		if o.IsUpdate() && o.ValueOp() == nil {
			return nil, ir.Errorf(ir.ErrCodeUnsupported, path, "update without a primitive")
		}
		node, exists := t.lookup(id)
		if !exists {
			return nil, ir.Errorf(ir.ErrCodeMissingNode, path, "node %q does not exist", id)
		}
		next := ir.CloneObject(node)

		value := o.Value()
		if o.IsSet() {
			current := op.AbsentIfNull(lookupIn(next, path[1:]))
			if !ir.Equal(current, o.OldValue()) {
				return nil, ir.Errorf(ir.ErrCodeContentMismatch, path, "old value %s does not match %s",
					ir.KindOf(o.OldValue()), ir.KindOf(current))
			}
		}
		if o.IsUpdate() {
			current := lookupIn(next, path[1:])
			if current == nil {
				return nil, ir.Errorf(ir.ErrCodeMissingProperty, path, "property does not exist")
			}
			var err error
			value, err = o.ValueOp().Apply(current)
			if err != nil {
				return nil, withPath(err, path)
			}
		}
		if err := assignIn(next, path, value); err != nil {
			return nil, err
		}
		t.put(id, next)
		return next, nil

	default:
		return nil, ir.Errorf(ir.ErrCodeUnsupported, path, "unknown operation kind %s", o.Kind())
	}
}

// lookupIn walks keys through nested objects. It returns nil when any
// segment is absent or not an object.
func lookupIn(obj ir.Object, keys []string) ir.Value {
	var cur ir.Value = obj
	for _, k := range keys {
		m, ok := cur.(ir.Object)
		if !ok {
			return nil
		}
		cur, ok = m[k]
		if !ok {
			return nil
		}
	}
	return cur
}

// assignIn stores v at path inside node (path[0] is the node id).
// Intermediate objects must exist. A nil v removes the property.
func assignIn(node ir.Object, path ir.Path, v ir.Value) error {
	parent := node
	for i := 1; i < len(path)-1; i++ {
		child, ok := parent[path[i]].(ir.Object)
		if !ok {
			return ir.Errorf(ir.ErrCodeMissingProperty, path, "no object at %s", path[:i+1])
		}
		parent = child
	}
	key := path[len(path)-1]
	if v == nil {
		delete(parent, key)
		return nil
	}
	parent[key] = v
	return nil
}

// withPath attaches path to a usage error that does not carry one yet.
func withPath(err error, path ir.Path) error {
	var ue *ir.UsageError
	if errors.As(err, &ue) && len(ue.Path) == 0 {
		ue.Path = path.Clone()
	}
	return err
}
