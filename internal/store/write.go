package store

import (
	"context"
	"fmt"

	"github.com/roach88/docmodel/internal/change"
	"github.com/roach88/docmodel/internal/document"
)

// Append journals ch with its operations in a single transaction.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - appending a change id
// twice leaves the first row in place.
//
// The change's before, after and data objects are serialized to canonical
// JSON for deterministic replay.
func (s *Store) Append(ctx context.Context, ch *change.Change) error {
	rec, err := ch.Record()
	if err != nil {
		return fmt.Errorf("append change: %w", err)
	}
	digest, err := ch.Digest()
	if err != nil {
		return fmt.Errorf("append change: %w", err)
	}
	before, err := marshalObject(rec.Before)
	if err != nil {
		return fmt.Errorf("append change: %w", err)
	}
	after, err := marshalObject(rec.After)
	if err != nil {
		return fmt.Errorf("append change: %w", err)
	}
	data, err := marshalObject(rec.Data)
	if err != nil {
		return fmt.Errorf("append change: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append change: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO changes
		(id, state, before, after, timestamp, user_id, data, digest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		int(rec.State),
		before,
		after,
		rec.Timestamp,
		rec.UserID,
		data,
		digest,
	)
	if err != nil {
		return fmt.Errorf("append change: insert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("append change: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil
	}

	for i, line := range rec.Ops {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO operations (change_id, idx, line) VALUES (?, ?, ?)
		`, rec.ID, i, line); err != nil {
			return fmt.Errorf("append change: operation %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append change: commit: %w", err)
	}
	return nil
}

// UpdateState moves a journaled change forward to state. Moving to the
// current or an earlier state is a no-op. Returns ErrNotFound for an
// unknown id.
func (s *Store) UpdateState(ctx context.Context, id string, state change.State) error {
	if !state.Valid() {
		return fmt.Errorf("update state %s: invalid state %d", id, state)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE changes SET state = ? WHERE id = ? AND state < ?
	`, int(state), id, int(state))
	if err != nil {
		return fmt.Errorf("update state %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update state %s: rows affected: %w", id, err)
	}
	if n > 0 {
		return nil
	}

	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM changes WHERE id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("update state %s: %w", id, err)
	}
	if exists == 0 {
		return fmt.Errorf("update state %s: %w", id, ErrNotFound)
	}
	return nil
}

// WriteSnapshot stores snap as covering the journal up to and including
// seq. Returns the snapshot row id.
func (s *Store) WriteSnapshot(ctx context.Context, snap document.Snapshot, seq int64) (int64, error) {
	digest, err := document.SnapshotDigest(snap)
	if err != nil {
		return 0, fmt.Errorf("write snapshot: %w", err)
	}
	nodes, err := marshalNodes(snap.Nodes)
	if err != nil {
		return 0, fmt.Errorf("write snapshot: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots
		(change_seq, schema_name, schema_version, nodes, digest)
		VALUES (?, ?, ?, ?, ?)
	`, seq, snap.Schema[0], snap.Schema[1], nodes, digest)
	if err != nil {
		return 0, fmt.Errorf("write snapshot: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("write snapshot: last insert id: %w", err)
	}
	return id, nil
}
