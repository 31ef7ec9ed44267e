package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/docmodel/internal/change"
	"github.com/roach88/docmodel/internal/codec"
	"github.com/roach88/docmodel/internal/document"
	"github.com/roach88/docmodel/internal/hub"
	"github.com/roach88/docmodel/internal/ir"
	"github.com/roach88/docmodel/internal/schema"
	"github.com/roach88/docmodel/internal/session"
	"github.com/roach88/docmodel/internal/store"
	"github.com/roach88/docmodel/internal/testutil"
)

// Epoch is the fake clock's start time in every run.
var Epoch = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

// Harness is the scenario execution engine.
// It runs scenarios with a fake clock and deterministic change ids.
type Harness struct {
	scenario *Scenario
	schema   *schema.Schema
	clock    *testutil.FakeClock
	hub      *hub.Loopback // nil with a single peer
	peers    []*peer
	byName   map[string]*peer
	logger   *slog.Logger
	result   *Result
	step     int
}

type peer struct {
	name    string
	doc     *document.Document
	session *session.Session
	journal *store.Store
}

// Run executes a scenario with logging discarded and returns the result.
//
// Each peer gets a fresh in-memory journal. Peers are connected through a
// loopback hub when there is more than one; a single peer runs without a
// hub, so its changes stop at the final state.
//
// Execution flow:
//  1. Load the schema and seed every peer's document
//  2. Execute steps, recording the trace
//  3. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger is Run with session logging sent to logger.
func RunWithLogger(scenario *Scenario, logger *slog.Logger) (*Result, error) {
	h, err := newHarness(scenario, logger)
	if err != nil {
		return nil, err
	}
	defer h.close()

	for i, step := range scenario.Steps {
		h.step = i
		h.check(step, h.execute(step))
	}

	for _, p := range h.peers {
		digest, err := p.doc.Digest()
		if err != nil {
			return nil, fmt.Errorf("digest %s: %w", p.name, err)
		}
		h.result.Digests[p.name] = digest
	}

	for _, msg := range EvaluateAssertions(h, scenario.Assertions) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

func newHarness(scenario *Scenario, logger *slog.Logger) (*Harness, error) {
	sch := schema.Default()
	if scenario.Schema != "" {
		var err error
		if sch, err = schema.Load(scenario.Schema); err != nil {
			return nil, fmt.Errorf("failed to load schema: %w", err)
		}
	}
	window := session.DefaultMergeWindow
	if scenario.MergeWindow != "" {
		var err error
		if window, err = time.ParseDuration(scenario.MergeWindow); err != nil {
			return nil, fmt.Errorf("merge window: %w", err)
		}
	}
	seed := make([]ir.Object, len(scenario.Seed))
	for i, node := range scenario.Seed {
		obj, err := ir.ObjectFromGo(node)
		if err != nil {
			return nil, fmt.Errorf("seed[%d]: %w", i, err)
		}
		seed[i] = obj
	}

	h := &Harness{
		scenario: scenario,
		schema:   sch,
		clock:    testutil.NewFakeClock(Epoch),
		byName:   make(map[string]*peer),
		logger:   logger,
		result:   NewResult(),
		step:     -1,
	}
	if len(scenario.Peers) > 1 {
		h.hub = hub.NewLoopback()
	}

	for _, name := range scenario.Peers {
		p, err := h.addPeer(name, window, seed)
		if err != nil {
			h.close()
			return nil, fmt.Errorf("peer %s: %w", name, err)
		}
		h.peers = append(h.peers, p)
		h.byName[name] = p
	}
	return h, nil
}

func (h *Harness) addPeer(name string, window time.Duration, seed []ir.Object) (*peer, error) {
	doc := document.New(h.schema)
	err := doc.Import(func(im *document.Importer) error {
		for _, node := range seed {
			if err := im.Create(node); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}

	journal, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	// The seed is not a change; a snapshot lets the journal replay on top of it.
	if _, err := journal.Checkpoint(context.Background(), doc); err != nil {
		journal.Close()
		return nil, err
	}

	p := &peer{name: name, doc: doc, journal: journal}
	p.session = session.New(doc,
		session.WithClock(h.clock),
		session.WithMergeWindow(window),
		session.WithUserID(name),
		session.WithIDGenerator(testutil.NewSequenceGenerator(name+"-")),
		session.WithJournal(&tracingJournal{h: h, peer: name, store: journal}),
		session.WithLogger(h.logger.With("peer", name)),
	)
	if h.hub != nil {
		p.session.ConnectHub(h.hub.Connect(p.session))
	}
	doc.Subscribe(func(ch *change.Change, info document.ChangeInfo, _ *document.Document) {
		kind := KindLocal
		switch {
		case info.Replay:
			kind = KindReplay
		case info.Remote:
			kind = KindRemote
		}
		lines, err := codec.EncodeAll(ch.Ops())
		if err != nil {
			h.result.AddError(fmt.Sprintf("step %d: encode %s: %v", h.step, ch.ID(), err))
		}
		h.result.add(TraceEvent{
			Step:   h.step,
			Peer:   name,
			Kind:   kind,
			Change: ch.ID(),
			State:  ch.State().String(),
			Ops:    lines,
		})
	})
	return p, nil
}

func (h *Harness) close() {
	for _, p := range h.peers {
		p.journal.Close()
	}
}

// peer returns the named peer, or the first one for "".
func (h *Harness) peer(name string) *peer {
	if name == "" {
		return h.peers[0]
	}
	return h.byName[name]
}

// execute runs one step.
func (h *Harness) execute(step Step) error {
	p := h.peer(step.Peer)
	if p == nil {
		return fmt.Errorf("unknown peer %q", step.Peer)
	}
	path := ir.ParsePath(step.Path)

	switch step.Do {
	case StepUndo:
		return p.session.Undo()
	case StepRedo:
		return p.session.Redo()
	case StepFlush:
		return p.session.Flush()
	case StepAdvance:
		d, err := time.ParseDuration(step.Duration)
		if err != nil {
			return err
		}
		h.clock.Advance(d)
		return nil
	case StepPump:
		if h.hub == nil {
			return errors.New("pump: scenario has a single peer and no hub")
		}
		return h.hub.Pump()
	}

	_, err := p.session.Transaction(nil, document.ChangeInfo{}, func(tx *session.Tx) (ir.Object, error) {
		switch step.Do {
		case StepCreate:
			node, err := ir.ObjectFromGo(step.Node)
			if err != nil {
				return nil, err
			}
			return nil, tx.Create(node)
		case StepDelete:
			return nil, tx.Delete(path.NodeID())
		case StepSet:
			v, err := valueOf(step.Value)
			if err != nil {
				return nil, err
			}
			return nil, tx.Set(path, v)
		case StepInsertText:
			return nil, tx.InsertText(path, step.Pos, step.Text)
		case StepDeleteText:
			return nil, tx.DeleteText(path, step.Pos, step.End)
		case StepInsertAt:
			v, err := valueOf(step.Value)
			if err != nil {
				return nil, err
			}
			return nil, tx.InsertAt(path, step.Pos, v)
		case StepRemoveAt:
			return nil, tx.RemoveAt(path, step.Pos)
		default:
			return nil, fmt.Errorf("unknown step %q", step.Do)
		}
	})
	return err
}

// check records the outcome of a step against its expected error.
func (h *Harness) check(step Step, err error) {
	switch {
	case step.ExpectError == "" && err != nil:
		h.result.AddError(fmt.Sprintf("step %d (%s): %v", h.step, step.Do, err))
	case step.ExpectError == "":
	case err == nil:
		h.result.AddError(fmt.Sprintf("step %d (%s): expected %s, got success", h.step, step.Do, step.ExpectError))
	case !ir.HasCode(err, ir.ErrorCode(step.ExpectError)):
		h.result.AddError(fmt.Sprintf("step %d (%s): expected %s, got %v", h.step, step.Do, step.ExpectError, err))
	default:
		h.result.add(TraceEvent{
			Step:  h.step,
			Peer:  h.peer(step.Peer).name,
			Kind:  KindError,
			Error: step.ExpectError,
		})
	}
}

// valueOf converts a YAML value; null means absent.
func valueOf(v any) (ir.Value, error) {
	if v == nil {
		return nil, nil
	}
	return ir.FromGo(v)
}

// tracingJournal records journal writes in the trace before storing them.
type tracingJournal struct {
	h     *Harness
	peer  string
	store *store.Store
}

func (j *tracingJournal) Append(ctx context.Context, ch *change.Change) error {
	j.h.result.add(TraceEvent{
		Step:   j.h.step,
		Peer:   j.peer,
		Kind:   KindJournal,
		Change: ch.ID(),
		State:  ch.State().String(),
	})
	return j.store.Append(ctx, ch)
}

func (j *tracingJournal) UpdateState(ctx context.Context, id string, state change.State) error {
	j.h.result.add(TraceEvent{
		Step:   j.h.step,
		Peer:   j.peer,
		Kind:   KindJournal,
		Change: id,
		State:  state.String(),
	})
	return j.store.UpdateState(ctx, id, state)
}
