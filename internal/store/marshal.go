package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/docmodel/internal/ir"
)

// marshalObject converts an optional context object to canonical JSON TEXT.
// A nil object is stored as NULL.
func marshalObject(obj ir.Object) (sql.NullString, error) {
	if obj == nil {
		return sql.NullString{}, nil
	}
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal object: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// unmarshalObject parses a nullable JSON TEXT column.
// Uses ir.Object.UnmarshalJSON, which rejects floats.
func unmarshalObject(col sql.NullString) (ir.Object, error) {
	if !col.Valid {
		return nil, nil
	}
	var obj ir.Object
	if err := json.Unmarshal([]byte(col.String), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal object: %w", err)
	}
	return obj, nil
}

// marshalNodes converts snapshot nodes to canonical JSON TEXT.
func marshalNodes(nodes map[string]ir.Object) (string, error) {
	obj := make(ir.Object, len(nodes))
	for id, node := range nodes {
		obj[id] = node
	}
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("marshal nodes: %w", err)
	}
	return string(data), nil
}

// unmarshalNodes parses snapshot nodes.
func unmarshalNodes(data string) (map[string]ir.Object, error) {
	var nodes map[string]ir.Object
	if err := json.Unmarshal([]byte(data), &nodes); err != nil {
		return nil, fmt.Errorf("unmarshal nodes: %w", err)
	}
	if nodes == nil {
		nodes = map[string]ir.Object{}
	}
	return nodes, nil
}
