package hub

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/docmodel/internal/change"
)

// Hub accepts finalized changes for ordering.
type Hub interface {
	Commit(ctx context.Context, ch *change.Change) error
}

// Receiver is the inbound side a session exposes to a hub.
type Receiver interface {
	ReceivedChange(ch *change.Change, version int64) error
	AcknowledgeChange(id string, version int64) error
}

// Sequencer assigns versions to committed changes in arrival order.
// Committing the same change id twice returns the original version.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Sequencer struct {
	mu       sync.Mutex
	version  int64
	versions map[string]int64
	log      []change.Record
}

// NewSequencer returns a sequencer at version 0.
func NewSequencer() *Sequencer {
	return &Sequencer{versions: make(map[string]int64)}
}

// Accept orders rec and returns its version. The second return is false
// when rec was already accepted.
func (s *Sequencer) Accept(rec change.Record) (int64, bool, error) {
	if rec.ID == "" {
		return 0, false, fmt.Errorf("accept change: missing id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.versions[rec.ID]; ok {
		return v, false, nil
	}
	s.version++
	s.versions[rec.ID] = s.version
	s.log = append(s.log, rec)
	CommitsAccepted.Inc()
	return s.version, true, nil
}

// Version returns the latest assigned version.
func (s *Sequencer) Version() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Since returns the records ordered after version, in order.
func (s *Sequencer) Since(version int64) []change.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if version < 0 {
		version = 0
	}
	if version >= int64(len(s.log)) {
		return nil
	}
	out := make([]change.Record, len(s.log)-int(version))
	copy(out, s.log[version:])
	return out
}
