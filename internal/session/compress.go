package session

import (
	"github.com/roach88/docmodel/internal/change"
	"github.com/roach88/docmodel/internal/op"
)

// Compressor decides whether a new change folds into the previous one.
// Merge is only called after ShouldMerge returned true, on a Provisional
// last change.
type Compressor interface {
	ShouldMerge(last, next *change.Change) bool
	Merge(last, next *change.Change) error
}

// NoCompression never merges.
type NoCompression struct{}

func (NoCompression) ShouldMerge(_, _ *change.Change) bool { return false }
func (NoCompression) Merge(_, _ *change.Change) error      { return nil }

// TextCompressor merges typing: two changes that are each a single text
// insert on the same property, by the same user, where the second starts
// where the first ended, become one wider insert.
type TextCompressor struct{}

func (TextCompressor) ShouldMerge(last, next *change.Change) bool {
	if last.UserID() != next.UserID() {
		return false
	}
	a, aok := singleInsert(last)
	b, bok := singleInsert(next)
	if !aok || !bok {
		return false
	}
	return a.Path().Equal(b.Path()) && textOp(b).Pos() == textOp(a).Pos()+textOp(a).Len()
}

func (TextCompressor) Merge(last, next *change.Change) error {
	a, _ := singleInsert(last)
	b, _ := singleInsert(next)
	ta, tb := textOp(a), textOp(b)
	merged := op.Update(a.Path(), op.TextInsert(ta.Pos(), ta.Str()+tb.Str()))
	return last.Replace([]op.Operation{merged}, next.After())
}

func singleInsert(ch *change.Change) (op.Operation, bool) {
	if ch.Len() != 1 {
		return op.Operation{}, false
	}
	o := ch.Ops()[0]
	if !o.IsUpdate() {
		return op.Operation{}, false
	}
	t, ok := o.ValueOp().(op.TextOp)
	if !ok || !t.IsInsert() {
		return op.Operation{}, false
	}
	return o, true
}

func textOp(o op.Operation) op.TextOp {
	return o.ValueOp().(op.TextOp)
}
