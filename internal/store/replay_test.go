package store

import (
	"context"
	"testing"

	"github.com/roach88/docmodel/internal/change"
	"github.com/roach88/docmodel/internal/document"
	"github.com/roach88/docmodel/internal/ir"
	"github.com/roach88/docmodel/internal/op"
	"github.com/roach88/docmodel/internal/schema"
)

func TestReplay_FromJournal(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	appendAll(t, s,
		createParagraph(t, "c1", "p1", "foo"),
		insertText(t, "c2", "p1", 3, "bar"),
	)

	doc := document.New(schema.Default())
	res, err := s.Replay(ctx, doc)
	if err != nil {
		t.Fatalf("Replay() failed: %v", err)
	}
	if res.FromSnapshot {
		t.Error("FromSnapshot = true, want false")
	}
	if res.Changes != 2 || res.LastSeq != 2 {
		t.Errorf("Replay() = %+v, want 2 changes through seq 2", res)
	}
	if got := doc.Get(ir.Path{"p1", "content"}); got != ir.String("foobar") {
		t.Errorf("content = %v, want foobar", got)
	}
	if got := doc.Types().Get("paragraph"); len(got) != 1 {
		t.Errorf("type index = %v, want [p1]", got)
	}

	want, _ := doc.Digest()
	if res.Digest != want {
		t.Errorf("Digest = %s, want %s", res.Digest, want)
	}
}

func TestReplay_FromSnapshot(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	appendAll(t, s,
		createParagraph(t, "c1", "p1", "foo"),
		insertText(t, "c2", "p1", 3, "bar"),
	)

	// Checkpoint the replayed state, then keep journaling.
	doc := document.New(schema.Default())
	if _, err := s.Replay(ctx, doc); err != nil {
		t.Fatalf("Replay() failed: %v", err)
	}
	seq, err := s.Checkpoint(ctx, doc)
	if err != nil {
		t.Fatalf("Checkpoint() failed: %v", err)
	}
	if seq != 2 {
		t.Errorf("Checkpoint() seq = %d, want 2", seq)
	}
	appendAll(t, s, insertText(t, "c3", "p1", 6, "!"))

	fresh := document.New(schema.Default())
	res, err := s.Replay(ctx, fresh)
	if err != nil {
		t.Fatalf("Replay() failed: %v", err)
	}
	if !res.FromSnapshot || res.SnapshotSeq != 2 {
		t.Errorf("Replay() = %+v, want snapshot at seq 2", res)
	}
	if res.Changes != 1 || res.LastSeq != 3 {
		t.Errorf("Replay() = %+v, want 1 change through seq 3", res)
	}
	if got := fresh.Get(ir.Path{"p1", "content"}); got != ir.String("foobar!") {
		t.Errorf("content = %v, want foobar!", got)
	}
}

func TestReplay_ClearsDocument(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	appendAll(t, s, createParagraph(t, "c1", "p1", "foo"))

	doc := document.New(schema.Default())
	if _, err := s.Replay(ctx, doc); err != nil {
		t.Fatalf("first Replay() failed: %v", err)
	}
	if _, err := s.Replay(ctx, doc); err != nil {
		t.Fatalf("second Replay() failed: %v", err)
	}
	if doc.Len() != 1 {
		t.Errorf("Len() = %d, want 1", doc.Len())
	}
}

func TestReplay_SchemaMismatch(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	snap := document.Snapshot{Schema: [2]string{"other", "1.0.0"}, Nodes: map[string]ir.Object{}}
	if _, err := s.WriteSnapshot(ctx, snap, 0); err != nil {
		t.Fatalf("WriteSnapshot() failed: %v", err)
	}

	_, err := s.Replay(ctx, document.New(schema.Default()))
	if !ir.HasCode(err, ir.ErrCodeSchemaViolation) {
		t.Errorf("Replay() error = %v, want SCHEMA_VIOLATION", err)
	}
}

// Removing an optional property journals as "null"; the replayed document
// must end up without the property, exactly like the live one.
func TestReplay_PropertyRemoval(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	comment := ir.Object{
		"id": ir.String("n1"), "type": ir.String("comment"), "containerId": ir.String("body"),
		"startPath": ir.Strings("p1", "content"), "startOffset": ir.Int(0),
		"endPath": ir.Strings("p1", "content"), "endOffset": ir.Int(1),
		"content": ir.String("note"),
	}
	changes := []*change.Change{
		finalChange(t, "c1", op.Create(ir.Path{"p1"}, paragraph("p1", "foo"))),
		finalChange(t, "c2", op.Create(ir.Path{"n1"}, comment)),
		finalChange(t, "c3", op.Set(ir.Path{"n1", "content"}, ir.String("note"), nil)),
	}
	appendAll(t, s, changes...)

	live := document.New(schema.Default())
	for _, ch := range changes {
		if err := live.Apply(ch.Ops()); err != nil {
			t.Fatalf("Apply(%s) failed: %v", ch.ID(), err)
		}
	}

	replayed := document.New(schema.Default())
	res, err := s.Replay(ctx, replayed)
	if err != nil {
		t.Fatalf("Replay() failed: %v", err)
	}
	if got := replayed.Get(ir.Path{"n1", "content"}); got != nil {
		t.Errorf("content = %v, want absent", got)
	}
	want, _ := live.Digest()
	if res.Digest != want {
		t.Errorf("Digest = %s, want %s", res.Digest, want)
	}
}
