package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docmodel/internal/change"
	"github.com/roach88/docmodel/internal/ir"
	"github.com/roach88/docmodel/internal/op"
)

func insertChange(path ir.Path, pos int, text, user string) *change.Change {
	return change.New([]op.Operation{op.Update(path, op.TextInsert(pos, text))}, nil, nil, change.WithUserID(user))
}

func TestTextCompressorShouldMerge(t *testing.T) {
	other := ir.Path{"p2", "content"}
	tests := []struct {
		name string
		next *change.Change
		want bool
	}{
		{"adjacent", insertChange(content, 5, "c", "ana"), true},
		{"gap", insertChange(content, 6, "c", "ana"), false},
		{"before", insertChange(content, 3, "c", "ana"), false},
		{"other path", insertChange(other, 5, "c", "ana"), false},
		{"other user", insertChange(content, 5, "c", "bob"), false},
		{"delete", change.New([]op.Operation{op.Update(content, op.TextDelete(4, "b"))}, nil, nil, change.WithUserID("ana")), false},
		{"two ops", change.New([]op.Operation{
			op.Update(content, op.TextInsert(5, "c")),
			op.Update(content, op.TextInsert(6, "d")),
		}, nil, nil, change.WithUserID("ana")), false},
	}

	last := insertChange(content, 3, "ab", "ana")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TextCompressor{}.ShouldMerge(last, tt.next))
		})
	}
	assert.False(t, NoCompression{}.ShouldMerge(last, insertChange(content, 5, "c", "ana")))
}

func TestTextCompressorMergeCountsSurrogates(t *testing.T) {
	last := insertChange(content, 0, "\U0001F600", "")
	next := insertChange(content, 2, "!", "")
	require.True(t, TextCompressor{}.ShouldMerge(last, next))

	require.NoError(t, TextCompressor{}.Merge(last, next))
	require.Equal(t, 1, last.Len())
	assert.Equal(t, "\U0001F600!", last.Ops()[0].ValueOp().(op.TextOp).Str())
}
