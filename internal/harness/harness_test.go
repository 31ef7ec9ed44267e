package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoldenScenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/collaborate.yaml")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := MarshalTrace(scenario.Name, first)
	require.NoError(t, err)
	b, err := MarshalTrace(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.Equal(t, first.Digests, second.Digests)
}

func run(t *testing.T, yaml string) *Result {
	t.Helper()
	scenario, err := ParseScenario([]byte(yaml))
	require.NoError(t, err)
	result, err := Run(scenario)
	require.NoError(t, err)
	return result
}

func TestRun_AssertionFailure(t *testing.T) {
	result := run(t, `
name: wrong
description: the expected value is wrong
seed:
  - {id: p1, type: paragraph, content: foo}
steps:
  - do: insert_text
    path: p1.content
    pos: 3
    text: bar
assertions:
  - type: value
    path: p1.content
    expect: foo
  - type: undo_depth
    count: 2
`)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], `Actual: "foobar"`)
	assert.Contains(t, result.Errors[1], "Expected: 2")
}

func TestRun_UnexpectedStepError(t *testing.T) {
	result := run(t, `
name: bad_step
description: deleting past the end fails
seed:
  - {id: p1, type: paragraph, content: foo}
steps:
  - do: delete_text
    path: p1.content
    pos: 2
    end: 9
assertions:
  - type: value
    path: p1.content
    expect: foo
`)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "OUT_OF_RANGE")
}

func TestRun_ExpectedErrorMismatch(t *testing.T) {
	result := run(t, `
name: mismatch
description: the step succeeds although an error was expected
seed:
  - {id: p1, type: paragraph, content: foo}
steps:
  - do: set
    path: p1.content
    value: bar
    expect_error: SCHEMA_VIOLATION
  - do: create
    node: {id: p1, type: paragraph, content: x}
    expect_error: MISSING_NODE
assertions:
  - type: value
    path: p1.content
    expect: bar
`)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "got success")
	assert.Contains(t, result.Errors[1], "DUPLICATE_NODE")
}

func TestRun_MergeWindow(t *testing.T) {
	result := run(t, `
name: window
description: typing after the merge window starts a new change
merge_window: 100ms
seed:
  - {id: p1, type: paragraph, content: ""}
steps:
  - do: insert_text
    path: p1.content
    text: a
  - do: insert_text
    path: p1.content
    pos: 1
    text: b
  - do: advance
    duration: 100ms
  - do: insert_text
    path: p1.content
    pos: 2
    text: c
  - do: flush
  - do: undo
assertions:
  - type: value
    path: p1.content
    expect: ab
  - type: undo_depth
    count: 1
  - type: redo_depth
    count: 1
  - type: journal
    state: final
    count: 3
  - type: replay
`)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_CreateSetDelete(t *testing.T) {
	result := run(t, `
name: structure
description: create a heading, change its level, remove a paragraph
seed:
  - {id: p1, type: paragraph, content: foo}
  - {id: t1, type: table, cells: [a, b]}
steps:
  - do: create
    node: {id: h1, type: heading, content: Title, level: 1}
  - do: set
    path: h1.level
    value: 2
  - do: delete
    path: p1
  - do: insert_at
    path: t1.cells
    pos: 2
    value: c
  - do: remove_at
    path: t1.cells
    pos: 0
  - do: flush
assertions:
  - type: value
    path: h1.level
    expect: 2
  - type: value
    path: p1
    expect: null
  - type: value
    path: t1.cells
    expect: [b, c]
  - type: undo_depth
    count: 5
  - type: trace_count
    kind: local
    count: 5
  - type: replay
`)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_PumpWithoutHub(t *testing.T) {
	result := run(t, `
name: lonely
description: a single peer has no hub to pump
steps:
  - do: pump
assertions:
  - type: converged
`)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.True(t, strings.Contains(result.Errors[0], "no hub"))
}

func TestRun_SchemaLoadError(t *testing.T) {
	scenario, err := ParseScenario([]byte(minimal))
	require.NoError(t, err)
	scenario.Schema = filepath.Join(t.TempDir(), "missing.cue")

	_, err = Run(scenario)
	assert.ErrorContains(t, err, "failed to load schema")
}
