package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/roach88/docmodel/internal/change"
)

// WSTransport is the client side of the websocket hub. It implements Hub
// for a session and feeds acknowledgements and foreign changes back to a
// Receiver from its read loop.
type WSTransport struct {
	conn *websocket.Conn
	recv Receiver

	writeMu sync.Mutex
	done    chan struct{}
	err     error
}

// Dial connects to a hub server at url (ws://host/ws) and starts the read
// loop.
func Dial(ctx context.Context, url string, recv Receiver) (*WSTransport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial hub %s: %w", url, err)
	}
	t := &WSTransport{conn: conn, recv: recv, done: make(chan struct{})}
	go t.readLoop()
	return t, nil
}

// Commit sends ch for ordering. The acknowledgement arrives through the
// Receiver.
func (t *WSTransport) Commit(ctx context.Context, ch *change.Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec, err := ch.Record()
	if err != nil {
		return fmt.Errorf("commit %s: %w", ch.ID(), err)
	}
	select {
	case <-t.done:
		return fmt.Errorf("commit %s: transport closed", ch.ID())
	default:
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(deadline)
	}
	if err := t.conn.WriteJSON(Message{Type: MsgCommit, ID: rec.ID, Change: &rec}); err != nil {
		return fmt.Errorf("commit %s: %w", ch.ID(), err)
	}
	return nil
}

// Done is closed when the read loop exits.
func (t *WSTransport) Done() <-chan struct{} { return t.done }

// Err returns the error that ended the read loop, if any.
func (t *WSTransport) Err() error {
	<-t.done
	return t.err
}

// Close sends a close frame and waits for the read loop to exit.
func (t *WSTransport) Close() error {
	t.writeMu.Lock()
	err := t.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	t.writeMu.Unlock()
	if err != nil {
		t.conn.Close()
	}
	<-t.done
	return t.conn.Close()
}

func (t *WSTransport) readLoop() {
	defer close(t.done)
	for {
		var msg Message
		if err := t.conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!errors.Is(err, websocket.ErrCloseSent) {
				t.err = err
			}
			return
		}
		if err := t.dispatch(msg); err != nil {
			slog.Error("hub message failed", "type", msg.Type, "id", msg.ID, "error", err)
		}
	}
}

func (t *WSTransport) dispatch(msg Message) error {
	switch msg.Type {
	case MsgAck:
		return t.recv.AcknowledgeChange(msg.ID, msg.Version)
	case MsgChange:
		if msg.Change == nil {
			return fmt.Errorf("change message without change")
		}
		ch, err := change.FromRecord(*msg.Change)
		if err != nil {
			return err
		}
		return t.recv.ReceivedChange(ch, msg.Version)
	case MsgError:
		return fmt.Errorf("hub rejected %s: %s", msg.ID, msg.Error)
	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
}
