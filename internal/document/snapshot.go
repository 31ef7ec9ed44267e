package document

import (
	"fmt"

	"github.com/roach88/docmodel/internal/ir"
	"github.com/roach88/docmodel/internal/op"
)

// Snapshot is the serialized form of a document.
type Snapshot struct {
	Schema [2]string            `json:"schema"`
	Nodes  map[string]ir.Object `json:"nodes"`
}

// Snapshot returns a copy of the current document contents.
func (d *Document) Snapshot() Snapshot {
	return Snapshot{
		Schema: [2]string{d.schema.Name, d.schema.Version},
		Nodes:  d.store.Nodes(),
	}
}

// Digest returns the content hash of the current snapshot.
func (d *Document) Digest() (string, error) {
	return SnapshotDigest(d.Snapshot())
}

// SnapshotDigest hashes snap's canonical JSON form. Equal contents give
// equal digests regardless of node creation order.
func SnapshotDigest(snap Snapshot) (string, error) {
	nodes := make(ir.Object, len(snap.Nodes))
	for id, node := range snap.Nodes {
		nodes[id] = node
	}
	return ir.Digest(ir.DomainSnapshot, ir.Object{
		"schema": ir.Strings(snap.Schema[0], snap.Schema[1]),
		"nodes":  nodes,
	})
}

// Importer stages node creation during Import. Indexes are rebuilt once
// after the importer returns.
type Importer struct {
	doc   *Document
	apply func(op.Operation) error
}

// Create validates and adds node.
func (im *Importer) Create(node ir.Object) error {
	return im.Apply(op.Create(ir.Path{node.ID()}, node))
}

// Set writes v at path.
func (im *Importer) Set(path ir.Path, v ir.Value) error {
	return im.Apply(op.Set(path, im.doc.store.Get(path), v))
}

// Apply validates and executes o.
func (im *Importer) Apply(o op.Operation) error {
	if err := im.doc.Check(im.doc.store, o); err != nil {
		return err
	}
	return im.apply(o)
}

// Import runs fn with indexing suspended. No change is recorded and no
// listener is notified.
func (d *Document) Import(fn func(im *Importer) error) error {
	return d.store.Import(func(apply func(op.Operation) error) error {
		return fn(&Importer{doc: d, apply: apply})
	})
}

// LoadSnapshot replaces the document contents with snap. The snapshot's
// schema name must match the document schema. On error the document is
// left empty.
func (d *Document) LoadSnapshot(snap Snapshot) error {
	if snap.Schema[0] != d.schema.Name {
		return ir.Errorf(ir.ErrCodeSchemaViolation, nil,
			"snapshot schema %q does not match document schema %q", snap.Schema[0], d.schema.Name)
	}
	d.store.Clear()
	err := d.Import(func(im *Importer) error {
		for _, id := range sortedIDs(snap.Nodes) {
			node := snap.Nodes[id]
			if node.ID() != id {
				return ir.Errorf(ir.ErrCodeSchemaViolation, ir.Path{id}, "snapshot key %q holds node %q", id, node.ID())
			}
			if err := im.Create(node); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		d.store.Clear()
		return fmt.Errorf("load snapshot: %w", err)
	}
	return nil
}

func sortedIDs(nodes map[string]ir.Object) []string {
	obj := make(ir.Object, len(nodes))
	for id := range nodes {
		obj[id] = ir.Null{}
	}
	return obj.SortedKeys()
}
