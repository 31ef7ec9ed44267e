package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/docmodel/internal/change"
	"github.com/roach88/docmodel/internal/ir"
)

// Scenario is a scripted editing session.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is an optional CUE schema file, relative to the scenario file.
	// The built-in schema is used when empty.
	Schema string `yaml:"schema,omitempty"`

	// Peers names one session per collaborator. Defaults to [local].
	Peers []string `yaml:"peers,omitempty"`

	// MergeWindow overrides the session merge window (Go duration syntax).
	MergeWindow string `yaml:"merge_window,omitempty"`

	// Seed nodes are imported into every peer's document before the steps.
	// Seeding records no change.
	Seed []map[string]any `yaml:"seed,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final documents, journals and trace.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one action in a scenario.
type Step struct {
	// Do names the action; see the Step constants.
	Do string `yaml:"do"`

	// Peer runs the step; defaults to the first peer.
	Peer string `yaml:"peer,omitempty"`

	// Path is a dot-joined property path (or node id for delete).
	Path string `yaml:"path,omitempty"`

	// Node is the node created by a create step.
	Node map[string]any `yaml:"node,omitempty"`

	// Value is the new value of set and insert_at.
	Value any `yaml:"value,omitempty"`

	// Pos is the text or array position.
	Pos int `yaml:"pos,omitempty"`

	// End is the exclusive end of delete_text.
	End int `yaml:"end,omitempty"`

	// Text is the string inserted by insert_text.
	Text string `yaml:"text,omitempty"`

	// Duration is how far advance moves the clock.
	Duration string `yaml:"duration,omitempty"`

	// ExpectError is the usage error code the step must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Step actions.
const (
	StepCreate     = "create"
	StepDelete     = "delete"
	StepSet        = "set"
	StepInsertText = "insert_text"
	StepDeleteText = "delete_text"
	StepInsertAt   = "insert_at"
	StepRemoveAt   = "remove_at"
	StepUndo       = "undo"
	StepRedo       = "redo"
	StepFlush      = "flush"
	StepAdvance    = "advance"
	StepPump       = "pump"
)

// Assertion validates the outcome of a scenario.
type Assertion struct {
	// Type is one of the Assert constants.
	Type string `yaml:"type"`

	// Peer selects the session; defaults to the first peer.
	Peer string `yaml:"peer,omitempty"`

	// Path is the property path checked by value.
	Path string `yaml:"path,omitempty"`

	// Expect is the expected value; null means absent.
	Expect any `yaml:"expect,omitempty"`

	// Count is the expected number for depth, version, journal and
	// trace_count assertions.
	Count int `yaml:"count"`

	// State filters journal assertions (provisional, final, pending,
	// acknowledged).
	State string `yaml:"state,omitempty"`

	// Kind filters trace_count assertions.
	Kind string `yaml:"kind,omitempty"`

	// Changes is the expected change order for trace_order.
	Changes []string `yaml:"changes,omitempty"`
}

// Assertion type constants.
const (
	AssertValue      = "value"
	AssertUndoDepth  = "undo_depth"
	AssertRedoDepth  = "redo_depth"
	AssertVersion    = "version"
	AssertConverged  = "converged"
	AssertJournal    = "journal"
	AssertReplay     = "replay"
	AssertTraceCount = "trace_count"
	AssertTraceOrder = "trace_order"
)

// DefaultPeer names the only session of a scenario without peers.
const DefaultPeer = "local"

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// A relative schema path is resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if scenario.Schema != "" && !filepath.IsAbs(scenario.Schema) {
		scenario.Schema = filepath.Join(filepath.Dir(path), scenario.Schema)
	}
	if scenario.Schema != "" {
		if _, err := os.Stat(scenario.Schema); os.IsNotExist(err) {
			return nil, fmt.Errorf("invalid scenario: schema file not found: %s", scenario.Schema)
		}
	}
	return scenario, nil
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(scenario.Peers) == 0 {
		scenario.Peers = []string{DefaultPeer}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if s.MergeWindow != "" {
		if _, err := time.ParseDuration(s.MergeWindow); err != nil {
			return fmt.Errorf("merge_window: %w", err)
		}
	}

	peers := make(map[string]bool, len(s.Peers))
	for _, p := range s.Peers {
		if p == "" {
			return fmt.Errorf("peer names must be non-empty")
		}
		if peers[p] {
			return fmt.Errorf("duplicate peer %q", p)
		}
		peers[p] = true
	}

	for i, node := range s.Seed {
		obj, err := ir.ObjectFromGo(node)
		if err != nil {
			return fmt.Errorf("seed[%d]: %w", i, err)
		}
		if obj.ID() == "" || obj.Type() == "" {
			return fmt.Errorf("seed[%d]: id and type are required", i)
		}
	}

	for i, step := range s.Steps {
		if step.Peer != "" && !peers[step.Peer] {
			return fmt.Errorf("steps[%d]: unknown peer %q", i, step.Peer)
		}
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		if a.Peer != "" && !peers[a.Peer] {
			return fmt.Errorf("assertions[%d]: unknown peer %q", i, a.Peer)
		}
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(step Step) error {
	switch step.Do {
	case StepCreate:
		if step.Node == nil {
			return fmt.Errorf("node is required for create")
		}
	case StepDelete, StepSet, StepInsertText, StepDeleteText, StepInsertAt, StepRemoveAt:
		if step.Path == "" {
			return fmt.Errorf("path is required for %s", step.Do)
		}
	case StepAdvance:
		if _, err := time.ParseDuration(step.Duration); err != nil {
			return fmt.Errorf("duration: %w", err)
		}
	case StepUndo, StepRedo, StepFlush, StepPump:
	case "":
		return fmt.Errorf("do is required")
	default:
		return fmt.Errorf("unknown step %q", step.Do)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertValue:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for value", index)
		}
	case AssertUndoDepth, AssertRedoDepth, AssertVersion, AssertConverged, AssertReplay:
	case AssertJournal:
		if _, err := change.ParseState(a.State); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	case AssertTraceCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for trace_count", index)
		}
	case AssertTraceOrder:
		if len(a.Changes) == 0 {
			return fmt.Errorf("assertions[%d]: changes list is required for trace_order", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}
	return nil
}
