package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/docmodel/internal/change"
	"github.com/roach88/docmodel/internal/document"
	"github.com/roach88/docmodel/internal/graph"
	"github.com/roach88/docmodel/internal/hub"
	"github.com/roach88/docmodel/internal/ir"
)

const hubTimeout = 10 * time.Second

// ErrNestedTransaction is returned when a transaction is already open.
var ErrNestedTransaction = ir.Errorf(ir.ErrCodeNestedTransaction, nil, "a transaction is already in progress")

// Journal durably records finalized and received changes.
type Journal interface {
	Append(ctx context.Context, ch *change.Change) error
	UpdateState(ctx context.Context, id string, state change.State) error
}

// Session owns the edit history of one document.
type Session struct {
	mu          sync.Mutex
	transacting atomic.Bool

	doc        *document.Document
	compressor Compressor
	hub        hub.Hub
	journal    Journal
	clock      Clock
	window     time.Duration
	userID     string
	gen        change.IDGenerator
	logger     *slog.Logger

	version     int64
	done        []*change.Change
	undone      []*change.Change
	open        []*change.Change // provisional, in commit order
	timers      map[string]func() bool
	uncommitted []*change.Change
	pending     []*change.Change
}

// New creates a session over doc.
func New(doc *document.Document, opts ...Option) *Session {
	s := &Session{
		doc:        doc,
		compressor: TextCompressor{},
		clock:      SystemClock{},
		window:     DefaultMergeWindow,
		gen:        change.UUIDv7Generator{},
		logger:     slog.Default(),
		timers:     make(map[string]func() bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ConnectHub sets the hub after construction, for transports that need
// the session as their Receiver.
func (s *Session) ConnectHub(h hub.Hub) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hub = h
}

// Document returns the session's document.
func (s *Session) Document() *document.Document { return s.doc }

// Transaction runs fn against a fresh stage. When fn succeeds and staged at
// least one operation, the operations are committed as one change and that
// change is returned. When fn fails or panics nothing is applied.
//
// Keys of before that the returned after-state does not mention are
// carried into the after-state. info.Meta is stored as the change's data.
// fn runs under the session lock and must not call other Session methods;
// a nested Transaction call fails fast.
func (s *Session) Transaction(before ir.Object, info document.ChangeInfo, fn TxFunc) (*change.Change, error) {
	if !s.transacting.CompareAndSwap(false, true) {
		return nil, ErrNestedTransaction
	}
	defer s.transacting.Store(false)

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := newTx(s.doc)
	after, err := fn(tx)
	if err != nil {
		return nil, fmt.Errorf("transaction: %w", err)
	}
	if tx.stage.Empty() {
		s.logger.Debug("empty transaction, no change recorded")
		return nil, nil
	}

	opts := []change.Option{change.WithIDGenerator(s.gen), change.WithUserID(s.userID)}
	if info.Meta != nil {
		opts = append(opts, change.WithData(info.Meta))
	}
	ch := change.New(tx.stage.Ops(), before, forward(before, after), opts...)
	if err := s.commit(ch, info); err != nil {
		return nil, err
	}
	return ch, nil
}

// forward copies keys of before missing from after.
func forward(before, after ir.Object) ir.Object {
	if len(before) == 0 {
		return after
	}
	out := ir.CloneObject(after)
	if out == nil {
		out = make(ir.Object, len(before))
	}
	for k, v := range before {
		if _, ok := out[k]; !ok {
			out[k] = ir.Clone(v)
		}
	}
	return out
}

// Commit applies a Provisional change built outside a transaction.
func (s *Session) Commit(ch *change.Change, info document.ChangeInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(ch, info)
}

func (s *Session) commit(ch *change.Change, info document.ChangeInfo) error {
	if !ch.IsProvisional() {
		return ir.Errorf(ir.ErrCodeInvalidState, nil, "commit %s: change is %s", ch.ID(), ch.State())
	}
	now := s.clock.Now()
	if err := ch.Stamp(now); err != nil {
		return fmt.Errorf("commit %s: %w", ch.ID(), err)
	}
	if err := s.apply(ch); err != nil {
		return fmt.Errorf("commit %s: %w", ch.ID(), err)
	}
	Commits.Inc()

	if s.merge(ch, now) {
		s.logger.Debug("change merged", "id", ch.ID(), "into", s.done[len(s.done)-1].ID())
	} else {
		s.done = append(s.done, ch)
		s.open = append(s.open, ch)
		s.schedule(ch)
		s.logger.Debug("change committed", "id", ch.ID(), "ops", ch.Len())
	}
	s.undone = nil

	s.doc.Notify(ch, info)
	return nil
}

// apply validates every operation of ch on a scratch overlay and then
// applies them to the document, so a bad change leaves it untouched.
func (s *Session) apply(ch *change.Change) error {
	ops := ch.Ops()
	scratch := graph.NewOverlay(s.doc.Graph())
	for i, o := range ops {
		if err := s.doc.Check(scratch, o); err != nil {
			return fmt.Errorf("op %d (%s): %w", i, o, err)
		}
		if err := scratch.Apply(o); err != nil {
			return fmt.Errorf("op %d (%s): %w", i, o, err)
		}
	}
	return s.doc.Apply(ops)
}

func (s *Session) merge(ch *change.Change, now time.Time) bool {
	if len(s.done) == 0 {
		return false
	}
	last := s.done[len(s.done)-1]
	if last.IsFinal() || now.Sub(last.Timestamp()) >= s.window {
		return false
	}
	if !s.compressor.ShouldMerge(last, ch) {
		return false
	}
	if err := s.compressor.Merge(last, ch); err != nil {
		s.logger.Warn("merge failed, keeping changes apart", "last", last.ID(), "next", ch.ID(), "error", err)
		return false
	}
	_ = last.Stamp(now)
	s.schedule(last)
	Merged.Inc()
	return true
}

// schedule (re)starts the finalize timer of ch.
func (s *Session) schedule(ch *change.Change) {
	id := ch.ID()
	if stop, ok := s.timers[id]; ok {
		stop()
	}
	s.timers[id] = s.clock.AfterFunc(s.window, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		_ = s.finalizeThrough(id)
	})
}

// finalizeThrough finalizes every open change up to and including id.
// An id that is no longer open was already finalized.
func (s *Session) finalizeThrough(id string) error {
	idx := slices.IndexFunc(s.open, func(c *change.Change) bool { return c.ID() == id })
	if idx < 0 {
		return nil
	}
	batch := s.open[:idx+1]
	s.open = slices.Clone(s.open[idx+1:])

	var errs []error
	for _, ch := range batch {
		if err := s.finalize(ch); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Session) finalize(ch *change.Change) error {
	if stop, ok := s.timers[ch.ID()]; ok {
		stop()
		delete(s.timers, ch.ID())
	}
	if ch.IsFinal() {
		return nil
	}
	if err := ch.Advance(change.Final); err != nil {
		return err
	}
	Finalized.Inc()
	s.logger.Info("change finalized", "id", ch.ID(), "ops", ch.Len())

	var errs []error
	if s.journal != nil {
		ctx, cancel := context.WithTimeout(context.Background(), hubTimeout)
		err := s.journal.Append(ctx, ch)
		cancel()
		if err != nil {
			s.logger.Error("journal append failed", "id", ch.ID(), "error", err)
			errs = append(errs, fmt.Errorf("journal %s: %w", ch.ID(), err))
		}
	}
	if err := s.sendToHub(ch); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// sendToHub commits a Final change. On failure the change is kept as
// uncommitted for the next Flush.
func (s *Session) sendToHub(ch *change.Change) error {
	if s.hub == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), hubTimeout)
	defer cancel()

	if err := s.hub.Commit(ctx, ch); err != nil {
		HubFailures.Inc()
		s.logger.Warn("hub commit failed", "id", ch.ID(), "error", err)
		s.uncommitted = append(s.uncommitted, ch)
		return fmt.Errorf("hub commit %s: %w", ch.ID(), err)
	}
	if err := ch.Advance(change.Pending); err != nil {
		return err
	}
	s.pending = append(s.pending, ch)
	s.updateJournal(ch)
	return nil
}

func (s *Session) updateJournal(ch *change.Change) {
	if s.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), hubTimeout)
	defer cancel()
	if err := s.journal.UpdateState(ctx, ch.ID(), ch.State()); err != nil {
		s.logger.Error("journal state update failed", "id", ch.ID(), "state", ch.State(), "error", err)
	}
}

// Flush finalizes every open change now and retries uncommitted ones.
func (s *Session) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush()
}

func (s *Session) flush() error {
	var errs []error
	if len(s.open) > 0 {
		if err := s.finalizeThrough(s.open[len(s.open)-1].ID()); err != nil {
			errs = append(errs, err)
		}
	}
	retry := s.uncommitted
	s.uncommitted = nil
	for _, ch := range retry {
		if err := s.sendToHub(ch); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close finalizes outstanding changes and stops every timer.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.flush()
	for id, stop := range s.timers {
		stop()
		delete(s.timers, id)
	}
	return err
}

// Undo reverts the latest change. With nothing to undo it logs a warning
// and returns nil.
func (s *Session) Undo() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.done) == 0 {
		s.logger.Warn("undo: nothing to undo")
		return nil
	}
	s.flushQuietly()

	last := s.done[len(s.done)-1]
	inv := last.Invert()
	if err := s.replay(inv); err != nil {
		return fmt.Errorf("undo %s: %w", last.ID(), err)
	}
	s.done = s.done[:len(s.done)-1]
	s.undone = append(s.undone, inv)
	Undos.Inc()
	return nil
}

// Redo reapplies the latest undone change. With nothing to redo it logs a
// warning and returns nil.
func (s *Session) Redo() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.undone) == 0 {
		s.logger.Warn("redo: nothing to redo")
		return nil
	}
	s.flushQuietly()

	last := s.undone[len(s.undone)-1]
	inv := last.Invert()
	if err := s.replay(inv); err != nil {
		return fmt.Errorf("redo %s: %w", last.ID(), err)
	}
	s.undone = s.undone[:len(s.undone)-1]
	s.done = append(s.done, inv)
	Redos.Inc()
	return nil
}

// flushQuietly finalizes open changes so the journal and hub see them
// before a replayed change. Hub and journal failures were logged already.
func (s *Session) flushQuietly() {
	if err := s.flush(); err != nil {
		s.logger.Debug("flush before replay", "error", err)
	}
}

// replay applies an undo or redo change, finalizes it at once, and
// publishes it with Replay set.
func (s *Session) replay(ch *change.Change) error {
	if err := ch.SetUserID(s.userID); err != nil {
		return err
	}
	if err := ch.Stamp(s.clock.Now()); err != nil {
		return err
	}
	if err := s.apply(ch); err != nil {
		return err
	}
	if err := s.finalize(ch); err != nil {
		s.logger.Debug("finalize replayed change", "id", ch.ID(), "error", err)
	}
	s.doc.Notify(ch, document.ChangeInfo{Replay: true})
	return nil
}

// ReceivedChange applies a change ordered by the hub at version. Local
// provisional changes are finalized first. The change is journaled but
// never becomes undoable.
func (s *Session) ReceivedChange(ch *change.Change, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if version <= s.version {
		return ir.Errorf(ir.ErrCodeInvalidState, nil, "received %s at stale version %d (at %d)", ch.ID(), version, s.version)
	}
	s.flushQuietly()

	if err := s.apply(ch); err != nil {
		return fmt.Errorf("receive %s: %w", ch.ID(), err)
	}
	if err := ch.Advance(change.Acknowledged); err != nil {
		return err
	}
	s.version = version
	s.logger.Info("remote change applied", "id", ch.ID(), "version", version)

	if s.journal != nil {
		ctx, cancel := context.WithTimeout(context.Background(), hubTimeout)
		err := s.journal.Append(ctx, ch)
		cancel()
		if err != nil {
			s.logger.Error("journal append failed", "id", ch.ID(), "error", err)
		}
	}
	s.doc.Notify(ch, document.ChangeInfo{Remote: true})
	return nil
}

// AcknowledgeChange marks the pending change id as ordered at version.
func (s *Session) AcknowledgeChange(id string, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := slices.IndexFunc(s.pending, func(c *change.Change) bool { return c.ID() == id })
	if idx < 0 {
		return ir.Errorf(ir.ErrCodeUnknownChange, nil, "no pending change %s", id)
	}
	if version <= s.version {
		return ir.Errorf(ir.ErrCodeInvalidState, nil, "acknowledge %s at stale version %d (at %d)", id, version, s.version)
	}
	ch := s.pending[idx]
	if err := ch.Advance(change.Acknowledged); err != nil {
		return err
	}
	s.pending = slices.Delete(s.pending, idx, idx+1)
	s.version = version
	s.updateJournal(ch)
	s.logger.Debug("change acknowledged", "id", id, "version", version)
	return nil
}

// CanUndo reports whether Undo would revert a change.
func (s *Session) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.done) > 0
}

// CanRedo reports whether Redo would reapply a change.
func (s *Session) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.undone) > 0
}

// Version returns the latest hub version seen.
func (s *Session) Version() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// LastChange returns the top of the undo stack, or nil.
func (s *Session) LastChange() *change.Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.done) == 0 {
		return nil
	}
	return s.done[len(s.done)-1]
}

// DoneChanges returns the undo stack, oldest first.
func (s *Session) DoneChanges() []*change.Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.done)
}

// UndoneChanges returns the redo stack, oldest first.
func (s *Session) UndoneChanges() []*change.Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.undone)
}

// Uncommitted returns finalized changes the hub has not accepted.
func (s *Session) Uncommitted() []*change.Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.uncommitted)
}

// Pending returns changes the hub accepted but has not acknowledged.
func (s *Session) Pending() []*change.Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.pending)
}

var _ hub.Receiver = (*Session)(nil)
