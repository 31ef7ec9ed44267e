package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/docmodel/internal/change"
	"github.com/roach88/docmodel/internal/ir"
	"github.com/roach88/docmodel/internal/op"
)

// createTestStore creates a new file-backed store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func paragraph(id, content string) ir.Object {
	return ir.Object{"id": ir.String(id), "type": ir.String("paragraph"), "content": ir.String(content)}
}

// createParagraph returns a final change creating paragraph id.
func createParagraph(t *testing.T, changeID, id, content string) *change.Change {
	t.Helper()
	ch := change.New(
		[]op.Operation{op.Create(ir.Path{id}, paragraph(id, content))},
		nil,
		ir.Object{"selection": ir.String(id)},
		change.WithID(changeID),
		change.WithUserID("alice"),
	)
	if err := ch.Advance(change.Final); err != nil {
		t.Fatalf("Advance() failed: %v", err)
	}
	return ch
}

// insertText returns a final change inserting str into the content of id.
func insertText(t *testing.T, changeID, id string, pos int, str string) *change.Change {
	t.Helper()
	ch := change.New(
		[]op.Operation{op.Update(ir.Path{id, "content"}, op.TextInsert(pos, str))},
		nil, nil,
		change.WithID(changeID),
	)
	if err := ch.Advance(change.Final); err != nil {
		t.Fatalf("Advance() failed: %v", err)
	}
	return ch
}

func appendAll(t *testing.T, s *Store, changes ...*change.Change) {
	t.Helper()
	for _, ch := range changes {
		if err := s.Append(context.Background(), ch); err != nil {
			t.Fatalf("Append(%s) failed: %v", ch.ID(), err)
		}
	}
}

// finalChange returns a final change wrapping ops.
func finalChange(t *testing.T, changeID string, ops ...op.Operation) *change.Change {
	t.Helper()
	ch := change.New(ops, nil, nil, change.WithID(changeID))
	if err := ch.Advance(change.Final); err != nil {
		t.Fatalf("Advance() failed: %v", err)
	}
	return ch
}
