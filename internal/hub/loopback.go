package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/docmodel/internal/change"
)

type delivery struct {
	to      int
	ack     string
	rec     change.Record
	version int64
}

// Loopback is an in-process hub. Acknowledgements and foreign changes are
// queued on Commit and delivered by Pump, so tests control when the
// round-trip completes.
type Loopback struct {
	mu      sync.Mutex
	seq     *Sequencer
	clients []Receiver
	queue   []delivery
	fail    error
}

// NewLoopback returns an empty loopback hub.
func NewLoopback() *Loopback {
	return &Loopback{seq: NewSequencer()}
}

// Connect registers r and returns the Hub endpoint for its session.
func (l *Loopback) Connect(r Receiver) Hub {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clients = append(l.clients, r)
	return &loopbackClient{hub: l, id: len(l.clients) - 1}
}

// FailCommits makes every later Commit return err until called with nil.
func (l *Loopback) FailCommits(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fail = err
}

// Queued returns the number of undelivered messages.
func (l *Loopback) Queued() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Version returns the latest assigned version.
func (l *Loopback) Version() int64 {
	return l.seq.Version()
}

// Pump delivers queued messages in order, including any queued while
// pumping. Delivery continues past receiver errors; they are joined.
func (l *Loopback) Pump() error {
	var errs []error
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return errors.Join(errs...)
		}
		d := l.queue[0]
		l.queue = l.queue[1:]
		r := l.clients[d.to]
		l.mu.Unlock()

		if err := deliver(r, d); err != nil {
			errs = append(errs, err)
		}
	}
}

func deliver(r Receiver, d delivery) error {
	if d.ack != "" {
		if err := r.AcknowledgeChange(d.ack, d.version); err != nil {
			return fmt.Errorf("acknowledge %s: %w", d.ack, err)
		}
		return nil
	}
	ch, err := change.FromRecord(d.rec)
	if err != nil {
		return fmt.Errorf("decode change %s: %w", d.rec.ID, err)
	}
	if err := r.ReceivedChange(ch, d.version); err != nil {
		return fmt.Errorf("receive %s: %w", d.rec.ID, err)
	}
	return nil
}

type loopbackClient struct {
	hub *Loopback
	id  int
}

func (c *loopbackClient) Commit(ctx context.Context, ch *change.Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec, err := ch.Record()
	if err != nil {
		return fmt.Errorf("commit %s: %w", ch.ID(), err)
	}

	l := c.hub
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail != nil {
		return fmt.Errorf("commit %s: %w", ch.ID(), l.fail)
	}
	version, fresh, err := l.seq.Accept(rec)
	if err != nil {
		return err
	}
	l.queue = append(l.queue, delivery{to: c.id, ack: rec.ID, version: version})
	if !fresh {
		return nil
	}
	for id := range l.clients {
		if id != c.id {
			l.queue = append(l.queue, delivery{to: id, rec: rec, version: version})
		}
	}
	return nil
}
