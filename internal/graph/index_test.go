package graph

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docmodel/internal/ir"
	"github.com/roach88/docmodel/internal/op"
)

func strong(id string, path ir.Path, start, end int64) ir.Object {
	return ir.Object{
		"id":          ir.String(id),
		"type":        ir.String("strong"),
		"path":        path.Array(),
		"startOffset": ir.Int(start),
		"endOffset":   ir.Int(end),
	}
}

func TestTypeIndexLive(t *testing.T) {
	s := newTestStore(t)
	types := s.Index(TypeIndexName).(*TypeIndex)

	require.NoError(t, s.Apply(op.Create(ir.Path{"p2"}, paragraph("p2", "")), Live))
	require.NoError(t, s.Apply(op.Create(ir.Path{"p1"}, paragraph("p1", "")), Live))
	assert.Equal(t, []string{"p1", "p2"}, types.Get("paragraph"))
	assert.True(t, types.Has("paragraph", "p1"))

	require.NoError(t, s.Apply(op.Delete(ir.Path{"p1"}, paragraph("p1", "")), Live))
	assert.Equal(t, []string{"p2"}, types.Get("paragraph"))

	require.NoError(t, s.Apply(op.Delete(ir.Path{"p2"}, paragraph("p2", "")), Live))
	assert.Empty(t, types.Types())
}

func TestBatchedApplyLeavesIndexesStale(t *testing.T) {
	s := newTestStore(t)
	types := s.Index(TypeIndexName).(*TypeIndex)

	require.NoError(t, s.Apply(op.Create(ir.Path{"p1"}, paragraph("p1", "")), Batched))
	assert.True(t, s.Stale())
	assert.Empty(t, types.Get("paragraph"))

	s.Reindex()
	assert.False(t, s.Stale())
	assert.Equal(t, []string{"p1"}, types.Get("paragraph"))
}

func TestLiveApplyCatchesUpStaleIndexes(t *testing.T) {
	s := newTestStore(t)
	types := s.Index(TypeIndexName).(*TypeIndex)

	require.NoError(t, s.Apply(op.Create(ir.Path{"p1"}, paragraph("p1", "")), Batched))
	require.NoError(t, s.Apply(op.Create(ir.Path{"p2"}, paragraph("p2", "")), Live))

	assert.Equal(t, []string{"p1", "p2"}, types.Get("paragraph"))
}

// Creating a node and an annotation referencing it in either order inside
// an import yields identical indexes.
func TestImportOrderIndependent(t *testing.T) {
	parent := op.Create(ir.Path{"p1"}, paragraph("p1", "foobar"))
	child := op.Create(ir.Path{"s1"}, strong("s1", ir.Path{"p1", "content"}, 0, 3))

	build := func(ops ...op.Operation) *Store {
		s := newTestStore(t)
		require.NoError(t, s.Import(func(apply func(op.Operation) error) error {
			for _, o := range ops {
				if err := apply(o); err != nil {
					return err
				}
			}
			return nil
		}))
		return s
	}

	a := build(parent, child)
	b := build(child, parent)

	for _, s := range []*Store{a, b} {
		assert.False(t, s.Stale())
		types := s.Index(TypeIndexName).(*TypeIndex)
		assert.Equal(t, []string{"p1"}, types.Get("paragraph"))
		assert.Equal(t, []string{"s1"}, types.Get("strong"))
	}
	assert.Equal(t,
		a.Index(AnnotationIndexName).(*AnnotationIndex).Get(ir.Path{"p1", "content"}),
		b.Index(AnnotationIndexName).(*AnnotationIndex).Get(ir.Path{"p1", "content"}))
}

func TestImportReindexesOnError(t *testing.T) {
	s := newTestStore(t)
	reindexes := testutil.ToFloat64(ReindexCount.WithLabelValues(TypeIndexName))

	err := s.Import(func(apply func(op.Operation) error) error {
		if err := apply(op.Create(ir.Path{"p1"}, paragraph("p1", ""))); err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.Error(t, err)

	assert.False(t, s.Stale())
	assert.Equal(t, []string{"p1"}, s.Index(TypeIndexName).(*TypeIndex).Get("paragraph"))
	assert.Equal(t, reindexes+1, testutil.ToFloat64(ReindexCount.WithLabelValues(TypeIndexName)))
}

func TestAnnotationIndex(t *testing.T) {
	s := newTestStore(t)
	annos := s.Index(AnnotationIndexName).(*AnnotationIndex)
	content := ir.Path{"p1", "content"}

	require.NoError(t, s.Apply(op.Create(ir.Path{"p1"}, paragraph("p1", "foo bar baz")), Live))
	require.NoError(t, s.Apply(op.Create(ir.Path{"s2"}, strong("s2", content, 8, 11)), Live))
	require.NoError(t, s.Apply(op.Create(ir.Path{"s1"}, strong("s1", content, 0, 3)), Live))

	spans := annos.Get(content)
	require.Len(t, spans, 2)
	assert.Equal(t, "s1", spans[0].ID)
	assert.Equal(t, "s2", spans[1].ID)

	assert.Len(t, annos.Overlapping(content, 2, 5), 1)
	assert.Len(t, annos.Overlapping(content, 3, 8), 2, "touching endpoints count")
	assert.Empty(t, annos.Overlapping(content, 4, 7))
	assert.Empty(t, annos.Get(ir.Path{"p2", "content"}))

	// Moving the range re-sorts the annotation.
	require.NoError(t, s.Apply(op.Set(ir.Path{"s1", "startOffset"}, ir.Int(0), ir.Int(9)), Live))
	spans = annos.Get(content)
	assert.Equal(t, "s2", spans[0].ID)

	// Removing the path drops it from the index.
	require.NoError(t, s.Apply(op.Set(ir.Path{"s2", "path"}, content.Array(), nil), Live))
	spans = annos.Get(content)
	require.Len(t, spans, 1)
	assert.Equal(t, "s1", spans[0].ID)

	require.NoError(t, s.Apply(op.Delete(ir.Path{"s1"}, strong("s1", content, 9, 3)), Live))
	assert.Empty(t, annos.Get(content))
}

func TestAnchorIndex(t *testing.T) {
	s := newTestStore(t)
	anchors := s.Index(AnchorIndexName).(*AnchorIndex)

	comment := ir.Object{
		"id":          ir.String("c1"),
		"type":        ir.String("comment"),
		"containerId": ir.String("body"),
		"startPath":   ir.Strings("p1", "content"),
		"startOffset": ir.Int(1),
		"endPath":     ir.Strings("p2", "content"),
		"endOffset":   ir.Int(4),
	}
	require.NoError(t, s.Apply(op.Create(ir.Path{"c1"}, comment), Live))

	got := anchors.Get("body")
	require.Len(t, got, 2)
	assert.Equal(t, Anchor{ID: "c1", IsStart: true, Path: ir.Path{"p1", "content"}, Offset: 1}, got[0])
	assert.Equal(t, Anchor{ID: "c1", IsStart: false, Path: ir.Path{"p2", "content"}, Offset: 4}, got[1])

	require.NoError(t, s.Apply(op.Set(ir.Path{"c1", "containerId"}, ir.String("body"), ir.String("aside")), Live))
	assert.Empty(t, anchors.Get("body"))
	assert.Len(t, anchors.Get("aside"), 2)

	comment["containerId"] = ir.String("aside")
	require.NoError(t, s.Apply(op.Delete(ir.Path{"c1"}, comment), Live))
	assert.Empty(t, anchors.Get("aside"))
}
