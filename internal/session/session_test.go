package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docmodel/internal/change"
	"github.com/roach88/docmodel/internal/document"
	"github.com/roach88/docmodel/internal/hub"
	"github.com/roach88/docmodel/internal/ir"
	"github.com/roach88/docmodel/internal/op"
	"github.com/roach88/docmodel/internal/schema"
	"github.com/roach88/docmodel/internal/testutil"
)

var content = ir.Path{"p1", "content"}

func paragraph(id, text string) ir.Object {
	return ir.Object{"id": ir.String(id), "type": ir.String("paragraph"), "content": ir.String(text)}
}

type memJournal struct {
	mu     sync.Mutex
	events []string
	fail   error
}

func (j *memJournal) Append(_ context.Context, ch *change.Change) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fail != nil {
		return j.fail
	}
	j.events = append(j.events, fmt.Sprintf("append %s %s", ch.ID(), ch.State()))
	return nil
}

func (j *memJournal) UpdateState(_ context.Context, id string, state change.State) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, fmt.Sprintf("state %s %s", id, state))
	return nil
}

func (j *memJournal) Events() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.events...)
}

type fixture struct {
	s       *Session
	doc     *document.Document
	clock   *testutil.FakeClock
	journal *memJournal
	logs    *bytes.Buffer
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		doc:     document.New(schema.Default()),
		clock:   testutil.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		journal: &memJournal{},
		logs:    &bytes.Buffer{},
	}
	logger := slog.New(slog.NewTextHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	base := []Option{
		WithClock(f.clock),
		WithJournal(f.journal),
		WithIDGenerator(testutil.NewSequenceGenerator("c")),
		WithLogger(logger),
	}
	f.s = New(f.doc, append(base, opts...)...)
	return f
}

func (f *fixture) create(t *testing.T, node ir.Object) *change.Change {
	t.Helper()
	ch, err := f.s.Transaction(nil, document.ChangeInfo{}, func(tx *Tx) (ir.Object, error) {
		return nil, tx.Create(node)
	})
	require.NoError(t, err)
	return ch
}

func (f *fixture) insert(t *testing.T, pos int, text string) *change.Change {
	t.Helper()
	ch, err := f.s.Transaction(nil, document.ChangeInfo{}, func(tx *Tx) (ir.Object, error) {
		return nil, tx.InsertText(content, pos, text)
	})
	require.NoError(t, err)
	return ch
}

func TestFooBarUndoRedo(t *testing.T) {
	f := newFixture(t)
	f.create(t, paragraph("p1", "foo"))
	f.insert(t, 3, "bar")
	assert.Equal(t, ir.String("foobar"), f.doc.Get(content))

	require.NoError(t, f.s.Undo())
	assert.Equal(t, ir.String("foo"), f.doc.Get(content))
	assert.True(t, f.s.CanRedo())

	require.NoError(t, f.s.Redo())
	assert.Equal(t, ir.String("foobar"), f.doc.Get(content))
	assert.False(t, f.s.CanRedo())
	assert.True(t, f.s.CanUndo())
}

func TestUndoEverything(t *testing.T) {
	f := newFixture(t)
	f.create(t, paragraph("p1", "foo"))
	f.insert(t, 3, "bar")

	require.NoError(t, f.s.Undo())
	require.NoError(t, f.s.Undo())
	assert.False(t, f.doc.Has("p1"))
	assert.False(t, f.s.CanUndo())

	require.NoError(t, f.s.Redo())
	require.NoError(t, f.s.Redo())
	assert.Equal(t, ir.String("foobar"), f.doc.Get(content))
}

func TestEmptyStacksAreNoOps(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.s.Undo())
	require.NoError(t, f.s.Redo())
	assert.Contains(t, f.logs.String(), "nothing to undo")
	assert.Contains(t, f.logs.String(), "nothing to redo")
}

func TestNewCommitClearsRedo(t *testing.T) {
	f := newFixture(t)
	f.create(t, paragraph("p1", "foo"))
	f.insert(t, 3, "bar")
	require.NoError(t, f.s.Undo())
	require.True(t, f.s.CanRedo())

	f.insert(t, 0, "x")
	assert.False(t, f.s.CanRedo())
	assert.Empty(t, f.s.UndoneChanges())
	assert.Equal(t, ir.String("xfoo"), f.doc.Get(content))
}

func TestNestedTransactionRejected(t *testing.T) {
	f := newFixture(t)
	var nestedErr error

	ch, err := f.s.Transaction(nil, document.ChangeInfo{}, func(tx *Tx) (ir.Object, error) {
		if err := tx.Create(paragraph("p1", "outer")); err != nil {
			return nil, err
		}
		_, nestedErr = f.s.Transaction(nil, document.ChangeInfo{}, func(tx *Tx) (ir.Object, error) {
			return nil, tx.Create(paragraph("p2", "inner"))
		})
		return nil, nil
	})

	require.NoError(t, err)
	require.NotNil(t, ch)
	assert.ErrorIs(t, nestedErr, ErrNestedTransaction)
	assert.True(t, ir.HasCode(nestedErr, ir.ErrCodeNestedTransaction))
	assert.True(t, f.doc.Has("p1"))
	assert.False(t, f.doc.Has("p2"))
	assert.Equal(t, 1, ch.Len())
}

func TestTransactionAtomicity(t *testing.T) {
	f := newFixture(t)
	before := f.doc.Len()

	_, err := f.s.Transaction(nil, document.ChangeInfo{}, func(tx *Tx) (ir.Object, error) {
		require.NoError(t, tx.Create(paragraph("p1", "a")))
		require.NoError(t, tx.Create(paragraph("p2", "b")))
		assert.True(t, tx.Has("p2"), "stage sees its own writes")
		return nil, errors.New("abort")
	})
	require.Error(t, err)
	assert.Equal(t, before, f.doc.Len())
	assert.False(t, f.s.CanUndo())

	assert.Panics(t, func() {
		_, _ = f.s.Transaction(nil, document.ChangeInfo{}, func(tx *Tx) (ir.Object, error) {
			_ = tx.Create(paragraph("p1", "a"))
			panic("boom")
		})
	})
	assert.Equal(t, before, f.doc.Len())

	// The guard and lock were released.
	f.create(t, paragraph("p1", "a"))
	assert.Equal(t, before+1, f.doc.Len())
}

func TestTransactionValidatesSchema(t *testing.T) {
	f := newFixture(t)
	_, err := f.s.Transaction(nil, document.ChangeInfo{}, func(tx *Tx) (ir.Object, error) {
		return nil, tx.Create(ir.Object{"id": ir.String("v1"), "type": ir.String("video")})
	})
	require.Error(t, err)
	assert.True(t, ir.HasCode(err, ir.ErrCodeSchemaViolation))
	assert.Zero(t, f.doc.Len())
}

func TestEmptyTransaction(t *testing.T) {
	f := newFixture(t)
	ch, err := f.s.Transaction(ir.Object{"selection": ir.Null{}}, document.ChangeInfo{}, func(*Tx) (ir.Object, error) {
		return nil, nil
	})
	require.NoError(t, err)
	assert.Nil(t, ch)
	assert.False(t, f.s.CanUndo())
}

func TestAfterStateForwarding(t *testing.T) {
	f := newFixture(t)
	before := ir.Object{"selection": ir.String("s0"), "surface": ir.String("body")}

	ch, err := f.s.Transaction(before, document.ChangeInfo{Meta: ir.Object{"source": ir.String("paste")}}, func(tx *Tx) (ir.Object, error) {
		return ir.Object{"selection": ir.String("s1")}, tx.Create(paragraph("p1", "x"))
	})
	require.NoError(t, err)
	assert.Equal(t, ir.Object{"selection": ir.String("s1"), "surface": ir.String("body")}, ch.After())
	assert.Equal(t, before, ch.Before())
	assert.Equal(t, ir.Object{"source": ir.String("paste")}, ch.Data())
}

func TestTxHelpers(t *testing.T) {
	f := newFixture(t)
	f.create(t, paragraph("p1", "hello world"))
	f.create(t, ir.Object{"id": ir.String("body"), "type": ir.String("container"), "nodes": ir.Strings("p1")})

	_, err := f.s.Transaction(nil, document.ChangeInfo{}, func(tx *Tx) (ir.Object, error) {
		if err := tx.DeleteText(content, 5, 11); err != nil {
			return nil, err
		}
		if err := tx.InsertAt(ir.Path{"body", "nodes"}, 1, ir.String("p2")); err != nil {
			return nil, err
		}
		if err := tx.Create(paragraph("p2", "")); err != nil {
			return nil, err
		}
		return nil, tx.RemoveAt(ir.Path{"body", "nodes"}, 0)
	})
	require.NoError(t, err)
	assert.Equal(t, ir.String("hello"), f.doc.Get(content))
	assert.Equal(t, ir.Strings("p2"), f.doc.Get(ir.Path{"body", "nodes"}))

	_, err = f.s.Transaction(nil, document.ChangeInfo{}, func(tx *Tx) (ir.Object, error) {
		return nil, tx.DeleteText(content, 2, 9)
	})
	assert.True(t, ir.HasCode(err, ir.ErrCodeOutOfRange))

	_, err = f.s.Transaction(nil, document.ChangeInfo{}, func(tx *Tx) (ir.Object, error) {
		return nil, tx.RemoveAt(content, 0)
	})
	assert.True(t, ir.HasCode(err, ir.ErrCodeTypeMismatch))

	_, err = f.s.Transaction(nil, document.ChangeInfo{}, func(tx *Tx) (ir.Object, error) {
		return nil, tx.Delete("nope")
	})
	assert.True(t, ir.HasCode(err, ir.ErrCodeMissingNode))

	_, err = f.s.Transaction(nil, document.ChangeInfo{}, func(tx *Tx) (ir.Object, error) {
		if err := tx.Set(content, ir.String("bye")); err != nil {
			return nil, err
		}
		return nil, tx.Delete("p2")
	})
	require.NoError(t, err)
	assert.Equal(t, ir.String("bye"), f.doc.Get(content))
	assert.False(t, f.doc.Has("p2"))
}

func TestTypingMergesWithinWindow(t *testing.T) {
	f := newFixture(t)
	f.create(t, paragraph("p1", "foo"))
	merged := promtest.ToFloat64(Merged)

	f.clock.Advance(100 * time.Millisecond)
	first := f.insert(t, 3, "b")
	f.clock.Advance(100 * time.Millisecond)
	f.insert(t, 4, "a")
	f.clock.Advance(100 * time.Millisecond)
	f.insert(t, 5, "r")

	done := f.s.DoneChanges()
	require.Len(t, done, 2)
	assert.Same(t, first, done[1])
	require.Equal(t, 1, first.Len())
	assert.Equal(t, `update p1.content t+ 3 "bar"`, first.Ops()[0].String())
	assert.Equal(t, merged+2, promtest.ToFloat64(Merged))

	// One undo reverts the whole word.
	require.NoError(t, f.s.Undo())
	assert.Equal(t, ir.String("foo"), f.doc.Get(content))
}

func TestNoMergeAcrossWindowOrGap(t *testing.T) {
	f := newFixture(t)
	f.create(t, paragraph("p1", "foo"))
	f.insert(t, 3, "b")
	f.clock.Advance(2 * time.Second)
	f.insert(t, 4, "a")
	f.insert(t, 0, "x") // not adjacent
	assert.Len(t, f.s.DoneChanges(), 4)

	g := newFixture(t, WithCompressor(NoCompression{}))
	g.create(t, paragraph("p1", "foo"))
	g.insert(t, 3, "b")
	g.insert(t, 4, "a")
	assert.Len(t, g.s.DoneChanges(), 3)
}

func TestFinalizeAfterWindow(t *testing.T) {
	lb := hub.NewLoopback()
	f := newFixture(t)
	f.s.ConnectHub(lb.Connect(f.s))

	ch := f.create(t, paragraph("p1", "foo"))
	assert.True(t, ch.IsProvisional())
	assert.Empty(t, f.journal.Events())

	f.clock.Advance(DefaultMergeWindow)
	assert.True(t, ch.IsPending())
	assert.Equal(t, []string{"append c1 final", "state c1 pending"}, f.journal.Events())
	require.Len(t, f.s.Pending(), 1)

	require.NoError(t, lb.Pump())
	assert.True(t, ch.IsAcknowledged())
	assert.Equal(t, int64(1), f.s.Version())
	assert.Empty(t, f.s.Pending())
	assert.Equal(t, "state c1 acknowledged", f.journal.Events()[2])
	assert.Zero(t, f.clock.Pending())
}

func TestFinalizeThroughEarlierChanges(t *testing.T) {
	f := newFixture(t, WithCompressor(NoCompression{}))
	a := f.create(t, paragraph("p1", "foo"))
	b := f.insert(t, 3, "x")

	f.s.mu.Lock()
	err := f.s.finalizeThrough(b.ID())
	f.s.mu.Unlock()
	require.NoError(t, err)
	assert.True(t, a.IsFinal())
	assert.True(t, b.IsFinal())

	// Later timers for the same changes are no-ops.
	f.clock.Advance(time.Minute)
	assert.Equal(t, []string{"append c1 final", "append c2 final"}, f.journal.Events())
}

func TestUndoFinalizesInOrder(t *testing.T) {
	f := newFixture(t)
	f.create(t, paragraph("p1", "foo"))
	f.insert(t, 3, "bar")

	require.NoError(t, f.s.Undo())
	assert.Equal(t, []string{"append c1 final", "append c2 final", "append c3 final"}, f.journal.Events())

	inv := f.s.UndoneChanges()[0]
	assert.True(t, inv.IsFinal())
	assert.Equal(t, `update p1.content t- 3 "bar"`, inv.Ops()[0].String())
}

func TestNotifications(t *testing.T) {
	f := newFixture(t)
	var infos []document.ChangeInfo
	f.doc.Subscribe(func(_ *change.Change, info document.ChangeInfo, _ *document.Document) {
		infos = append(infos, info)
	})

	f.create(t, paragraph("p1", "foo"))
	_, err := f.s.Transaction(nil, document.ChangeInfo{Silent: true}, func(tx *Tx) (ir.Object, error) {
		return nil, tx.InsertText(content, 0, "x")
	})
	require.NoError(t, err)
	require.NoError(t, f.s.Undo())

	require.Len(t, infos, 2)
	assert.False(t, infos[0].Replay)
	assert.True(t, infos[1].Replay)
}

func TestOperationListenersSeeOpsInOrder(t *testing.T) {
	f := newFixture(t)
	var seen []string
	f.doc.Graph().OnApplied(func(o op.Operation) { seen = append(seen, o.Kind().String()) })

	_, err := f.s.Transaction(nil, document.ChangeInfo{}, func(tx *Tx) (ir.Object, error) {
		if err := tx.Create(paragraph("p1", "")); err != nil {
			return nil, err
		}
		if err := tx.InsertText(content, 0, "hi"); err != nil {
			return nil, err
		}
		return nil, tx.Set(content, ir.String("yo"))
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"create", "update", "set"}, seen)
}

func TestHubFailureKeepsChangeUncommitted(t *testing.T) {
	lb := hub.NewLoopback()
	f := newFixture(t)
	f.s.ConnectHub(lb.Connect(f.s))

	lb.FailCommits(errors.New("offline"))
	ch := f.create(t, paragraph("p1", "foo"))
	err := f.s.Flush()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "offline")
	assert.True(t, ch.IsFinal())
	assert.False(t, ch.IsPending())
	require.Len(t, f.s.Uncommitted(), 1)

	lb.FailCommits(nil)
	require.NoError(t, f.s.Flush())
	assert.Empty(t, f.s.Uncommitted())
	assert.True(t, ch.IsPending())
}

func TestTwoSessionsConverge(t *testing.T) {
	lb := hub.NewLoopback()
	a := newFixture(t)
	b := newFixture(t, WithIDGenerator(testutil.NewSequenceGenerator("b")))
	a.s.ConnectHub(lb.Connect(a.s))
	b.s.ConnectHub(lb.Connect(b.s))

	var remote []bool
	b.doc.Subscribe(func(_ *change.Change, info document.ChangeInfo, _ *document.Document) {
		remote = append(remote, info.Remote)
	})

	a.create(t, paragraph("p1", "foo"))
	a.insert(t, 3, "bar")
	require.NoError(t, a.s.Flush())
	require.NoError(t, lb.Pump())

	assert.Equal(t, ir.String("foobar"), b.doc.Get(content))
	assert.False(t, b.s.CanUndo(), "remote changes are not undoable")
	assert.Equal(t, []bool{true, true}, remote)
	assert.Equal(t, int64(2), a.s.Version())
	assert.Equal(t, int64(2), b.s.Version())
	assert.Equal(t, []string{"append c1 acknowledged", "append c2 acknowledged"}, b.journal.Events())

	digestA, err := a.doc.Digest()
	require.NoError(t, err)
	digestB, err := b.doc.Digest()
	require.NoError(t, err)
	assert.Equal(t, digestA, digestB)
}

func TestAcknowledgeErrors(t *testing.T) {
	lb := hub.NewLoopback()
	f := newFixture(t)
	f.s.ConnectHub(lb.Connect(f.s))

	err := f.s.AcknowledgeChange("nope", 1)
	assert.True(t, ir.HasCode(err, ir.ErrCodeUnknownChange))

	f.create(t, paragraph("p1", "foo"))
	require.NoError(t, f.s.Flush())
	require.NoError(t, lb.Pump())

	f.insert(t, 0, "x")
	require.NoError(t, f.s.Flush())
	err = f.s.AcknowledgeChange("c2", 1)
	assert.True(t, ir.HasCode(err, ir.ErrCodeInvalidState))
}

func TestReceivedChangeRejectsStaleVersion(t *testing.T) {
	f := newFixture(t)
	rec := change.Record{ID: "r1", State: change.Final, Ops: []string{"c\tp1\t{\"content\":\"x\",\"id\":\"p1\",\"type\":\"paragraph\"}"}}
	ch, err := change.FromRecord(rec)
	require.NoError(t, err)
	require.NoError(t, f.s.ReceivedChange(ch, 3))
	assert.Equal(t, int64(3), f.s.Version())

	rec.ID = "r2"
	again, err := change.FromRecord(rec)
	require.NoError(t, err)
	err = f.s.ReceivedChange(again, 3)
	assert.True(t, ir.HasCode(err, ir.ErrCodeInvalidState))
}

func TestCommitRejectsBadChange(t *testing.T) {
	f := newFixture(t)
	f.create(t, paragraph("p1", "foo"))

	bad := change.New([]op.Operation{
		op.Update(content, op.TextInsert(3, "!")),
		op.Update(content, op.TextDelete(0, "zzz")),
	}, nil, nil)
	err := f.s.Commit(bad, document.ChangeInfo{})
	require.Error(t, err)
	assert.True(t, ir.HasCode(err, ir.ErrCodeContentMismatch))
	assert.Equal(t, ir.String("foo"), f.doc.Get(content), "nothing applied")

	require.NoError(t, bad.Advance(change.Final))
	assert.True(t, ir.HasCode(f.s.Commit(bad, document.ChangeInfo{}), ir.ErrCodeInvalidState))
}

func TestClose(t *testing.T) {
	f := newFixture(t)
	ch := f.create(t, paragraph("p1", "foo"))
	require.NoError(t, f.s.Close())
	assert.True(t, ch.IsFinal())
	assert.Zero(t, f.clock.Pending())
}
