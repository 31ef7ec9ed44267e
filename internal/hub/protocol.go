package hub

import "github.com/roach88/docmodel/internal/change"

// Message types on the websocket protocol.
const (
	MsgCommit = "commit" // client → hub: order this change
	MsgAck    = "ack"    // hub → committing client
	MsgChange = "change" // hub → every other client
	MsgError  = "error"  // hub → client: commit rejected
)

// Message is one websocket frame.
type Message struct {
	Type    string         `json:"type"`
	Change  *change.Record `json:"change,omitempty"`
	ID      string         `json:"id,omitempty"`
	Version int64          `json:"version,omitempty"`
	Error   string         `json:"error,omitempty"`
}
