package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/docmodel/internal/change"
	"github.com/roach88/docmodel/internal/document"
	"github.com/roach88/docmodel/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] step %d %s %s %s %s\n", ev.Seq, ev.Step, ev.Peer, ev.Kind, ev.Change, ev.State)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages. An empty slice means all passed.
func EvaluateAssertions(h *Harness, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(h, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func evaluate(h *Harness, a Assertion) error {
	p := h.peer(a.Peer)
	if p == nil {
		return fmt.Errorf("unknown peer %q", a.Peer)
	}

	switch a.Type {
	case AssertValue:
		return assertValue(p, a)
	case AssertUndoDepth:
		return assertCount(a.Type, a.Count, len(p.session.DoneChanges()))
	case AssertRedoDepth:
		return assertCount(a.Type, a.Count, len(p.session.UndoneChanges()))
	case AssertVersion:
		return assertCount(a.Type, a.Count, int(p.session.Version()))
	case AssertConverged:
		return assertConverged(h)
	case AssertJournal:
		return assertJournal(p, a)
	case AssertReplay:
		return assertReplay(h, p)
	case AssertTraceCount:
		return assertTraceCount(h.result.Trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(h.result.Trace, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertValue(p *peer, a Assertion) error {
	want, err := valueOf(a.Expect)
	if err != nil {
		return fmt.Errorf("expect: %w", err)
	}
	got := p.doc.Get(ir.ParsePath(a.Path))
	if ir.Equal(got, want) {
		return nil
	}
	return &AssertionError{
		Type:     AssertValue,
		Expected: fmt.Sprintf("%s on %s = %s", a.Path, p.name, show(want)),
		Actual:   show(got),
	}
}

func show(v ir.Value) string {
	if v == nil {
		return "absent"
	}
	data, err := ir.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func assertCount(typ string, want, got int) error {
	if want == got {
		return nil
	}
	return &AssertionError{
		Type:     typ,
		Expected: fmt.Sprintf("%d", want),
		Actual:   fmt.Sprintf("%d", got),
	}
}

func assertConverged(h *Harness) error {
	first := h.peers[0]
	want := h.result.Digests[first.name]
	for _, p := range h.peers[1:] {
		if got := h.result.Digests[p.name]; got != want {
			return &AssertionError{
				Type:     AssertConverged,
				Expected: fmt.Sprintf("%s digest %s", first.name, want),
				Actual:   fmt.Sprintf("%s digest %s", p.name, got),
				Trace:    h.result.Trace,
			}
		}
	}
	return nil
}

func assertJournal(p *peer, a Assertion) error {
	state, err := change.ParseState(a.State)
	if err != nil {
		return err
	}
	counts, err := p.journal.CountByState(context.Background())
	if err != nil {
		return err
	}
	if counts[state] == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertJournal,
		Expected: fmt.Sprintf("%d %s changes in %s's journal", a.Count, state, p.name),
		Actual:   fmt.Sprintf("%v", counts),
	}
}

// assertReplay rebuilds the peer's document from its journal alone and
// compares digests. Changes still open in the session are not journaled,
// so scenarios flush before asserting.
func assertReplay(h *Harness, p *peer) error {
	fresh := document.New(h.schema)
	res, err := p.journal.Replay(context.Background(), fresh)
	if err != nil {
		return err
	}
	want := h.result.Digests[p.name]
	if res.Digest == want {
		return nil
	}
	return &AssertionError{
		Type:     AssertReplay,
		Expected: fmt.Sprintf("%s digest %s", p.name, want),
		Actual:   fmt.Sprintf("replayed %d changes to digest %s", res.Changes, res.Digest),
		Trace:    h.result.Trace,
	}
}

func assertTraceCount(trace []TraceEvent, a Assertion) error {
	n := 0
	for _, ev := range trace {
		if ev.Kind == a.Kind && (a.Peer == "" || ev.Peer == a.Peer) {
			n++
		}
	}
	if n == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Expected: fmt.Sprintf("%d %s events", a.Count, a.Kind),
		Actual:   fmt.Sprintf("%d", n),
		Trace:    trace,
	}
}

// assertTraceOrder checks that the listed changes are first observed by a
// notification in that order. Other events may come between them.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	first := make(map[string]int)
	for i, ev := range trace {
		switch ev.Kind {
		case KindLocal, KindReplay, KindRemote:
		default:
			continue
		}
		if a.Peer != "" && ev.Peer != a.Peer {
			continue
		}
		if _, seen := first[ev.Change]; !seen {
			first[ev.Change] = i
		}
	}

	last := -1
	for _, id := range a.Changes {
		pos, ok := first[id]
		if !ok {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("change %s in trace", id),
				Actual:   "not found",
				Trace:    trace,
			}
		}
		if pos < last {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("order %v", a.Changes),
				Actual:   fmt.Sprintf("%s observed out of order", id),
				Trace:    trace,
			}
		}
		last = pos
	}
	return nil
}
