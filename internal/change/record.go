package change

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/docmodel/internal/codec"
	"github.com/roach88/docmodel/internal/ir"
)

// Record is the wire form of a Change. Operations are codec lines and the
// timestamp is in Unix milliseconds.
type Record struct {
	ID        string    `json:"id"`
	State     State     `json:"state"`
	Ops       []string  `json:"ops"`
	Before    ir.Object `json:"before,omitempty"`
	After     ir.Object `json:"after,omitempty"`
	Timestamp int64     `json:"timestamp,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	Data      ir.Object `json:"data,omitempty"`
}

// Record returns the wire form of c.
func (c *Change) Record() (Record, error) {
	lines, err := codec.EncodeAll(c.ops)
	if err != nil {
		return Record{}, fmt.Errorf("change %s: %w", c.id, err)
	}
	rec := Record{
		ID:     c.id,
		State:  c.state,
		Ops:    lines,
		Before: ir.CloneObject(c.before),
		After:  ir.CloneObject(c.after),
		UserID: c.userID,
		Data:   ir.CloneObject(c.data),
	}
	if !c.timestamp.IsZero() {
		rec.Timestamp = c.timestamp.UnixMilli()
	}
	return rec, nil
}

// FromRecord rebuilds a change from its wire form. Every field, including
// id and state, is restored as recorded and the result is frozen.
func FromRecord(rec Record) (*Change, error) {
	if rec.ID == "" {
		return nil, fmt.Errorf("change record without id")
	}
	if !rec.State.Valid() {
		return nil, fmt.Errorf("change %s: invalid state %d", rec.ID, rec.State)
	}
	ops, err := codec.DecodeAll(rec.Ops)
	if err != nil {
		return nil, fmt.Errorf("change %s: %w", rec.ID, err)
	}

	c := &Change{
		id:     rec.ID,
		ops:    ops,
		before: ir.CloneObject(rec.Before),
		after:  ir.CloneObject(rec.After),
		state:  rec.State,
		userID: rec.UserID,
		data:   ir.CloneObject(rec.Data),
		frozen: true,
		gen:    UUIDv7Generator{},
	}
	if rec.Timestamp != 0 {
		c.timestamp = time.UnixMilli(rec.Timestamp)
	}
	c.index()
	return c, nil
}

// MarshalJSON encodes the change as its Record.
func (c *Change) MarshalJSON() ([]byte, error) {
	rec, err := c.Record()
	if err != nil {
		return nil, err
	}
	return json.Marshal(rec)
}

// UnmarshalJSON decodes a Record into a frozen change.
func (c *Change) UnmarshalJSON(data []byte) error {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	decoded, err := FromRecord(rec)
	if err != nil {
		return err
	}
	*c = *decoded
	return nil
}

// Digest returns a content hash over the operations, context, and author.
// Lifecycle state and timestamp are excluded, so the digest is stable as
// the change moves through its lifecycle.
func (c *Change) Digest() (string, error) {
	lines, err := codec.EncodeAll(c.ops)
	if err != nil {
		return "", err
	}
	ops := make([]any, len(lines))
	for i, l := range lines {
		ops[i] = l
	}
	content := map[string]any{
		"id":     c.id,
		"ops":    ops,
		"before": objectOrNull(c.before),
		"after":  objectOrNull(c.after),
		"userId": c.userID,
	}
	return ir.Digest(ir.DomainChange, content)
}

func objectOrNull(obj ir.Object) ir.Value {
	if obj == nil {
		return ir.Null{}
	}
	return obj
}
