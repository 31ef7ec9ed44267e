package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/docmodel/internal/change"
	"github.com/roach88/docmodel/internal/document"
)

// ErrNotFound is returned when a change or snapshot does not exist.
var ErrNotFound = errors.New("not found")

// ErrDigestMismatch is returned when stored content no longer matches its
// recorded digest.
var ErrDigestMismatch = errors.New("digest mismatch")

// Entry is one journaled change with its journal position.
type Entry struct {
	Seq    int64
	Change *change.Change
}

// SnapshotEntry is a stored snapshot with the journal position it covers.
type SnapshotEntry struct {
	ID       int64
	Seq      int64
	Snapshot document.Snapshot
	Digest   string
}

// ReadChange retrieves a single change by id.
// Returns ErrNotFound if it does not exist.
func (s *Store) ReadChange(ctx context.Context, id string) (*change.Change, error) {
	entries, err := s.readChanges(ctx, `WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("read change %s: %w", id, ErrNotFound)
	}
	return entries[0].Change, nil
}

// ReadChanges returns every change journaled after seq, in journal order.
// Returns an empty slice (not nil) when there are none.
func (s *Store) ReadChanges(ctx context.Context, afterSeq int64) ([]Entry, error) {
	return s.readChanges(ctx, `WHERE seq > ?`, afterSeq)
}

// LastSeq returns the newest journal position, or 0 for an empty journal.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM changes`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq.Int64, nil
}

// CountByState returns the number of journaled changes per state.
func (s *Store) CountByState(ctx context.Context) (map[change.State]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM changes GROUP BY state ORDER BY state`)
	if err != nil {
		return nil, fmt.Errorf("count by state: %w", err)
	}
	defer rows.Close()

	counts := make(map[change.State]int)
	for rows.Next() {
		var state, n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("count by state: scan: %w", err)
		}
		counts[change.State(state)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count by state: %w", err)
	}
	return counts, nil
}

// readChanges loads changes matching where, ordered by seq. Operations are
// loaded with one query for the whole batch.
func (s *Store) readChanges(ctx context.Context, where string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, state, before, after, timestamp, user_id, data, digest
		FROM changes
		`+where+`
		ORDER BY seq ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}

	type row struct {
		seq    int64
		rec    change.Record
		digest string
	}
	var found []row
	for rows.Next() {
		var (
			r                   row
			state               int
			before, after, data sql.NullString
		)
		if err := rows.Scan(&r.seq, &r.rec.ID, &state, &before, &after, &r.rec.Timestamp, &r.rec.UserID, &data, &r.digest); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan change: %w", err)
		}
		r.rec.State = change.State(state)
		if r.rec.Before, err = unmarshalObject(before); err != nil {
			rows.Close()
			return nil, fmt.Errorf("change %s before: %w", r.rec.ID, err)
		}
		if r.rec.After, err = unmarshalObject(after); err != nil {
			rows.Close()
			return nil, fmt.Errorf("change %s after: %w", r.rec.ID, err)
		}
		if r.rec.Data, err = unmarshalObject(data); err != nil {
			rows.Close()
			return nil, fmt.Errorf("change %s data: %w", r.rec.ID, err)
		}
		found = append(found, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate changes: %w", err)
	}
	rows.Close()

	entries := make([]Entry, 0, len(found))
	for _, r := range found {
		lines, err := s.readOperations(ctx, r.rec.ID)
		if err != nil {
			return nil, err
		}
		r.rec.Ops = lines
		ch, err := change.FromRecord(r.rec)
		if err != nil {
			return nil, fmt.Errorf("decode change %s: %w", r.rec.ID, err)
		}
		digest, err := ch.Digest()
		if err != nil {
			return nil, fmt.Errorf("digest change %s: %w", r.rec.ID, err)
		}
		if digest != r.digest {
			return nil, fmt.Errorf("change %s: %w", r.rec.ID, ErrDigestMismatch)
		}
		entries = append(entries, Entry{Seq: r.seq, Change: ch})
	}
	return entries, nil
}

func (s *Store) readOperations(ctx context.Context, changeID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT line FROM operations WHERE change_id = ? ORDER BY idx ASC
	`, changeID)
	if err != nil {
		return nil, fmt.Errorf("query operations %s: %w", changeID, err)
	}
	defer rows.Close()

	lines := []string{}
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operations: %w", err)
	}
	return lines, nil
}

// LatestSnapshot returns the newest snapshot.
// Returns ErrNotFound when no snapshot was written.
func (s *Store) LatestSnapshot(ctx context.Context) (SnapshotEntry, error) {
	var (
		e     SnapshotEntry
		nodes string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, change_seq, schema_name, schema_version, nodes, digest
		FROM snapshots
		ORDER BY change_seq DESC, id DESC
		LIMIT 1
	`).Scan(&e.ID, &e.Seq, &e.Snapshot.Schema[0], &e.Snapshot.Schema[1], &nodes, &e.Digest)
	if errors.Is(err, sql.ErrNoRows) {
		return SnapshotEntry{}, fmt.Errorf("latest snapshot: %w", ErrNotFound)
	}
	if err != nil {
		return SnapshotEntry{}, fmt.Errorf("latest snapshot: %w", err)
	}

	if e.Snapshot.Nodes, err = unmarshalNodes(nodes); err != nil {
		return SnapshotEntry{}, fmt.Errorf("latest snapshot: %w", err)
	}
	digest, err := document.SnapshotDigest(e.Snapshot)
	if err != nil {
		return SnapshotEntry{}, fmt.Errorf("latest snapshot: %w", err)
	}
	if digest != e.Digest {
		return SnapshotEntry{}, fmt.Errorf("snapshot %d: %w", e.ID, ErrDigestMismatch)
	}
	return e, nil
}
