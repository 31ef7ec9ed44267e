package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePath(t *testing.T) {
	assert.Equal(t, Path{"p1", "content"}, ParsePath("p1.content"))
	assert.Equal(t, Path{"p1"}, ParsePath("p1"))
	assert.Nil(t, ParsePath(""))
}

func TestPathString(t *testing.T) {
	assert.Equal(t, "p1.content", Path{"p1", "content"}.String())
	assert.Equal(t, "p1", Path{"p1"}.String())
}

func TestPathKeyDoesNotCollide(t *testing.T) {
	a := Path{"a.b", "c"}
	b := Path{"a", "b.c"}

	assert.Equal(t, a.String(), b.String(), "dot form is ambiguous")
	assert.NotEqual(t, a.Key(), b.Key())
}

func TestPathHelpers(t *testing.T) {
	p := Path{"p1", "content"}

	assert.Equal(t, "p1", p.NodeID())
	assert.False(t, p.IsNode())
	assert.True(t, Path{"p1"}.IsNode())
	assert.Equal(t, "", Path(nil).NodeID())
	assert.True(t, p.Equal(Path{"p1", "content"}))

	c := p.Clone()
	c[0] = "x"
	assert.Equal(t, "p1", p[0])

	assert.True(t, Equal(Strings("p1", "content"), p.Array()))
}

func TestUsageErrorMatching(t *testing.T) {
	err := Errorf(ErrCodeMissingNode, Path{"p9"}, "node %q does not exist", "p9")

	assert.True(t, IsUsageError(err))
	assert.True(t, HasCode(err, ErrCodeMissingNode))
	assert.False(t, HasCode(err, ErrCodeDuplicateNode))
	assert.Equal(t, `MISSING_NODE: node "p9" does not exist (path=p9)`, err.Error())

	wrapped := fmtWrap(err)
	assert.True(t, HasCode(wrapped, ErrCodeMissingNode))
}
