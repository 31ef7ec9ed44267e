package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
name: minimal
description: one insert
seed:
  - {id: p1, type: paragraph, content: foo}
steps:
  - do: insert_text
    path: p1.content
    pos: 0
    text: x
assertions:
  - type: value
    path: p1.content
    expect: xfoo
`

func TestParseScenario_Defaults(t *testing.T) {
	s, err := ParseScenario([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, "minimal", s.Name)
	assert.Equal(t, []string{DefaultPeer}, s.Peers)
	require.Len(t, s.Steps, 1)
	assert.Equal(t, StepInsertText, s.Steps[0].Do)
	assert.Equal(t, "x", s.Steps[0].Text)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", "name: x\ndescription: y\nstep: []\n", "failed to parse YAML"},
		{"missing name", "description: y\nsteps: [{do: undo}]\nassertions: [{type: converged}]\n", "name is required"},
		{"missing steps", "name: x\ndescription: y\nassertions: [{type: converged}]\n", "steps list is required"},
		{"unknown step", "name: x\ndescription: y\nsteps: [{do: jump}]\nassertions: [{type: converged}]\n", `unknown step "jump"`},
		{"create without node", "name: x\ndescription: y\nsteps: [{do: create}]\nassertions: [{type: converged}]\n", "node is required"},
		{"set without path", "name: x\ndescription: y\nsteps: [{do: set, value: 1}]\nassertions: [{type: converged}]\n", "path is required"},
		{"bad duration", "name: x\ndescription: y\nsteps: [{do: advance, duration: soon}]\nassertions: [{type: converged}]\n", "duration"},
		{"unknown peer", "name: x\ndescription: y\npeers: [a]\nsteps: [{do: undo, peer: b}]\nassertions: [{type: converged}]\n", `unknown peer "b"`},
		{"duplicate peer", "name: x\ndescription: y\npeers: [a, a]\nsteps: [{do: undo}]\nassertions: [{type: converged}]\n", "duplicate peer"},
		{"seed without type", "name: x\ndescription: y\nseed: [{id: p1}]\nsteps: [{do: undo}]\nassertions: [{type: converged}]\n", "id and type are required"},
		{"float seed", "name: x\ndescription: y\nseed: [{id: p1, type: heading, level: 1.5}]\nsteps: [{do: undo}]\nassertions: [{type: converged}]\n", "floats"},
		{"unknown assertion", "name: x\ndescription: y\nsteps: [{do: undo}]\nassertions: [{type: magic}]\n", `unknown assertion type "magic"`},
		{"bad journal state", "name: x\ndescription: y\nsteps: [{do: undo}]\nassertions: [{type: journal, state: done}]\n", "unknown change state"},
		{"trace_order without changes", "name: x\ndescription: y\nsteps: [{do: undo}]\nassertions: [{type: trace_order}]\n", "changes list is required"},
		{"negative count", "name: x\ndescription: y\nsteps: [{do: undo}]\nassertions: [{type: undo_depth, count: -1}]\n", "non-negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_ResolvesSchema(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.cue"), []byte("schema: {}\n"), 0o644))
	path := filepath.Join(dir, "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte("schema: doc.cue\n"+minimal), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "doc.cue"), s.Schema)
}

func TestLoadScenario_Errors(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read scenario file")

	path := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte("schema: nope.cue\n"+minimal), 0o644))
	_, err = LoadScenario(path)
	assert.ErrorContains(t, err, "schema file not found")
}
