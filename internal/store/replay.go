package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/docmodel/internal/document"
)

// ReplayResult summarizes a replay.
type ReplayResult struct {
	// FromSnapshot is set when replay started from a stored snapshot.
	FromSnapshot bool
	// SnapshotSeq is the journal position the snapshot covered.
	SnapshotSeq int64
	// Changes is the number of journal entries applied after it.
	Changes int
	// LastSeq is the journal position the document now reflects.
	LastSeq int64
	// Digest is the resulting document digest.
	Digest string
}

// Replay rebuilds doc from the newest snapshot and every change journaled
// after it. The document is cleared first; changes are applied with
// indexing suspended and indexes rebuilt once at the end. No listener is
// notified.
func (s *Store) Replay(ctx context.Context, doc *document.Document) (ReplayResult, error) {
	var res ReplayResult

	snap, err := s.LatestSnapshot(ctx)
	switch {
	case err == nil:
		if err := doc.LoadSnapshot(snap.Snapshot); err != nil {
			return res, fmt.Errorf("replay: %w", err)
		}
		res.FromSnapshot = true
		res.SnapshotSeq = snap.Seq
		res.LastSeq = snap.Seq
	case errors.Is(err, ErrNotFound):
		doc.Graph().Clear()
	default:
		return res, fmt.Errorf("replay: %w", err)
	}

	entries, err := s.ReadChanges(ctx, res.SnapshotSeq)
	if err != nil {
		return res, fmt.Errorf("replay: %w", err)
	}

	err = doc.Import(func(im *document.Importer) error {
		for _, e := range entries {
			for i, o := range e.Change.Ops() {
				if err := im.Apply(o); err != nil {
					return fmt.Errorf("change %s (seq %d) op %d: %w", e.Change.ID(), e.Seq, i, err)
				}
			}
			res.Changes++
			res.LastSeq = e.Seq
		}
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("replay: %w", err)
	}

	if res.Digest, err = doc.Digest(); err != nil {
		return res, fmt.Errorf("replay: %w", err)
	}
	return res, nil
}

// Checkpoint writes a snapshot of doc covering the whole journal.
func (s *Store) Checkpoint(ctx context.Context, doc *document.Document) (int64, error) {
	seq, err := s.LastSeq(ctx)
	if err != nil {
		return 0, fmt.Errorf("checkpoint: %w", err)
	}
	if _, err := s.WriteSnapshot(ctx, doc.Snapshot(), seq); err != nil {
		return 0, fmt.Errorf("checkpoint: %w", err)
	}
	return seq, nil
}
