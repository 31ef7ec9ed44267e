package session

import (
	"log/slog"
	"time"

	"github.com/roach88/docmodel/internal/change"
	"github.com/roach88/docmodel/internal/hub"
)

// DefaultMergeWindow is how long a change stays open for merging.
const DefaultMergeWindow = 1500 * time.Millisecond

// Clock supplies wall time and finalize timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) (stop func() bool)
}

// SystemClock is the real clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) AfterFunc(d time.Duration, fn func()) (stop func() bool) {
	return time.AfterFunc(d, fn).Stop
}

// Option configures a Session.
type Option func(*Session)

// WithCompressor sets the merge policy. The default is TextCompressor.
func WithCompressor(c Compressor) Option {
	return func(s *Session) { s.compressor = c }
}

// WithHub sets where finalized changes are committed.
func WithHub(h hub.Hub) Option {
	return func(s *Session) { s.hub = h }
}

// WithJournal sets the durable change log.
func WithJournal(j Journal) Option {
	return func(s *Session) { s.journal = j }
}

// WithClock replaces the wall clock, typically with a fake in tests.
func WithClock(c Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithMergeWindow sets how long a committed change may absorb the next one.
func WithMergeWindow(d time.Duration) Option {
	return func(s *Session) { s.window = d }
}

// WithUserID stamps local changes with their author.
func WithUserID(id string) Option {
	return func(s *Session) { s.userID = id }
}

// WithIDGenerator sets how change ids are generated.
func WithIDGenerator(g change.IDGenerator) Option {
	return func(s *Session) { s.gen = g }
}

// WithLogger sets the structured logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}
