package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSealed(t *testing.T) {
	// Compile-time check via assignment
	var _ Value = Null{}
	var _ Value = String("test")
	var _ Value = Int(42)
	var _ Value = Bool(true)
	var _ Value = Array{String("a"), Int(1)}
	var _ Value = Object{"key": String("value")}
}

func TestObjectSortedKeysRFC8785Order(t *testing.T) {
	obj := Object{
		"a":  Int(1),
		"A":  Int(2),
		"aa": Int(3),
		"aA": Int(4),
		"Aa": Int(5),
		"AA": Int(6),
	}

	assert.Equal(t, []string{"A", "AA", "Aa", "a", "aA", "aa"}, obj.SortedKeys())
}

func TestCompareKeysRFC8785(t *testing.T) {
	tests := []struct {
		a, b     string
		expected int
	}{
		{"a", "b", -1},
		{"b", "a", 1},
		{"a", "a", 0},
		{"aa", "a", 1},
		{"", "a", -1},
		// U+FFFD (BMP) sorts after U+1F600 in UTF-16 (surrogate 0xD83D)
		{"\uFFFD", "\U0001F600", 1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, compareKeysRFC8785(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
	}
}

func TestObjectAccessors(t *testing.T) {
	node := Object{
		"id":          String("s1"),
		"type":        String("strong"),
		"path":        Strings("p1", "content"),
		"startOffset": Int(2),
	}

	assert.Equal(t, "s1", node.ID())
	assert.Equal(t, "strong", node.Type())

	p, ok := node.PathAt("path")
	require.True(t, ok)
	assert.Equal(t, Path{"p1", "content"}, p)

	n, ok := node.IntAt("startOffset")
	require.True(t, ok)
	assert.Equal(t, int64(2), n)

	_, ok = node.StringAt("startOffset")
	assert.False(t, ok)

	_, ok = Object{"path": Array{Int(1)}}.PathAt("path")
	assert.False(t, ok, "non-string segments are not a path")
}

func TestCloneIsDeep(t *testing.T) {
	orig := Object{
		"nodes": Strings("p1", "p2"),
		"meta":  Object{"level": Int(1)},
	}

	cp := CloneObject(orig)
	cp["nodes"].(Array)[0] = String("changed")
	cp["meta"].(Object)["level"] = Int(9)

	assert.Equal(t, String("p1"), orig["nodes"].(Array)[0])
	assert.Equal(t, Int(1), orig["meta"].(Object)["level"])
	assert.Nil(t, Clone(nil))
	assert.Nil(t, CloneObject(nil))
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"nil nil", nil, nil, true},
		{"nil null", nil, Null{}, false},
		{"null null", Null{}, Null{}, true},
		{"strings", String("a"), String("a"), true},
		{"string vs int", String("1"), Int(1), false},
		{"arrays", Array{Int(1), String("x")}, Array{Int(1), String("x")}, true},
		{"array order", Array{Int(1), Int(2)}, Array{Int(2), Int(1)}, false},
		{"objects", Object{"a": Int(1)}, Object{"a": Int(1)}, true},
		{"object missing key", Object{"a": Int(1)}, Object{"b": Int(1)}, false},
		{"nested", Object{"a": Array{Object{}}}, Object{"a": Array{Object{}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
		})
	}
}

func TestMarshalSortedNoHTMLEscape(t *testing.T) {
	node := Object{
		"type":    String("paragraph"),
		"id":      String("p1"),
		"content": String("a <b> & c"),
	}

	data, err := Marshal(node)
	require.NoError(t, err)
	assert.Equal(t, `{"content":"a <b> & c","id":"p1","type":"paragraph"}`, string(data))

	data, err = Marshal(nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}

func TestUnmarshalValues(t *testing.T) {
	tests := []struct {
		in   string
		want Value
	}{
		{`"foo"`, String("foo")},
		{`1234`, Int(1234)},
		{`true`, Bool(true)},
		{`null`, Null{}},
		{`["a",1]`, Array{String("a"), Int(1)}},
		{`{"k":{"n":null}}`, Object{"k": Object{"n": Null{}}}},
		{`9223372036854775807`, Int(9223372036854775807)},
	}

	for _, tt := range tests {
		got, err := Unmarshal([]byte(tt.in))
		require.NoError(t, err, tt.in)
		assert.True(t, Equal(tt.want, got), "%s decoded to %#v", tt.in, got)
	}
}

func TestUnmarshalRejects(t *testing.T) {
	for _, in := range []string{`1.5`, `1e3`, `{"a":2.5}`, ``, `"a" "b"`, `{`, `99999999999999999999`} {
		_, err := Unmarshal([]byte(in))
		assert.Error(t, err, "expected error for %q", in)
	}
}

func TestObjectJSONRoundTrip(t *testing.T) {
	orig := Object{
		"id":    String("body"),
		"type":  String("container"),
		"nodes": Strings("p1", "h1"),
	}

	data, err := json.Marshal(orig)
	require.NoError(t, err)

	var decoded Object
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, Equal(orig, decoded))
}

func TestFromGo(t *testing.T) {
	v, err := FromGo(map[string]any{
		"id":    "p1",
		"level": 2,
		"tags":  []any{"a", true, nil},
	})
	require.NoError(t, err)

	want := Object{
		"id":    String("p1"),
		"level": Int(2),
		"tags":  Array{String("a"), Bool(true), Null{}},
	}
	assert.True(t, Equal(want, v))

	_, err = FromGo(map[string]any{"x": 1.5})
	assert.Error(t, err)
}
