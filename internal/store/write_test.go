package store

import (
	"context"
	"errors"
	"testing"

	"github.com/roach88/docmodel/internal/change"
	"github.com/roach88/docmodel/internal/session"
)

var _ session.Journal = (*Store)(nil)

func TestAppend_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ch := createParagraph(t, "c1", "p1", "hello")
	if err := s.Append(ctx, ch); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}

	got, err := s.ReadChange(ctx, "c1")
	if err != nil {
		t.Fatalf("ReadChange() failed: %v", err)
	}
	if got.ID() != "c1" {
		t.Errorf("ID = %q, want c1", got.ID())
	}
	if got.State() != change.Final {
		t.Errorf("State = %v, want final", got.State())
	}
	if got.UserID() != "alice" {
		t.Errorf("UserID = %q, want alice", got.UserID())
	}
	if got.Len() != 1 || !got.Ops()[0].IsCreate() {
		t.Errorf("Ops = %v, want one create", got.Ops())
	}
	if got.Before() != nil {
		t.Errorf("Before = %v, want nil", got.Before())
	}

	want, _ := ch.Digest()
	have, _ := got.Digest()
	if want != have {
		t.Errorf("digest changed across round trip: %s != %s", have, want)
	}
}

func TestAppend_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ch := createParagraph(t, "c1", "p1", "hello")
	for i := 0; i < 2; i++ {
		if err := s.Append(ctx, ch); err != nil {
			t.Fatalf("Append() #%d failed: %v", i, err)
		}
	}

	var changes, ops int
	s.db.QueryRow("SELECT COUNT(*) FROM changes").Scan(&changes)
	s.db.QueryRow("SELECT COUNT(*) FROM operations").Scan(&ops)
	if changes != 1 {
		t.Errorf("changes rows = %d, want 1", changes)
	}
	if ops != 1 {
		t.Errorf("operations rows = %d, want 1", ops)
	}
}

func TestUpdateState(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, createParagraph(t, "c1", "p1", "hello")); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}

	if err := s.UpdateState(ctx, "c1", change.Pending); err != nil {
		t.Fatalf("UpdateState(pending) failed: %v", err)
	}
	if err := s.UpdateState(ctx, "c1", change.Acknowledged); err != nil {
		t.Fatalf("UpdateState(acknowledged) failed: %v", err)
	}
	// Moving backward leaves the row alone.
	if err := s.UpdateState(ctx, "c1", change.Final); err != nil {
		t.Fatalf("UpdateState(final) failed: %v", err)
	}

	got, err := s.ReadChange(ctx, "c1")
	if err != nil {
		t.Fatalf("ReadChange() failed: %v", err)
	}
	if got.State() != change.Acknowledged {
		t.Errorf("State = %v, want acknowledged", got.State())
	}

	counts, err := s.CountByState(ctx)
	if err != nil {
		t.Fatalf("CountByState() failed: %v", err)
	}
	if counts[change.Acknowledged] != 1 || len(counts) != 1 {
		t.Errorf("CountByState() = %v", counts)
	}
}

func TestUpdateState_Unknown(t *testing.T) {
	s := createTestStore(t)

	err := s.UpdateState(context.Background(), "missing", change.Pending)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateState() error = %v, want ErrNotFound", err)
	}
}

func TestUpdateState_Invalid(t *testing.T) {
	s := createTestStore(t)

	if err := s.UpdateState(context.Background(), "c1", change.State(9)); err == nil {
		t.Error("expected error for invalid state, got nil")
	}
}
