package ir

import (
	"slices"
	"strings"
)

// Path addresses a node ([id]) or a property within it ([id, property, ...]).
// Paths are the only addressing scheme used by operations and indexes.
type Path []string

// ParsePath splits a dot-joined path. ParsePath("") returns nil.
func ParsePath(s string) Path {
	if s == "" {
		return nil
	}
	return Path(strings.Split(s, "."))
}

// String joins the segments with dots, the wire representation.
func (p Path) String() string {
	return strings.Join(p, ".")
}

// Key returns a map key for p. Unlike String it cannot collide for
// segments that themselves contain dots.
func (p Path) Key() string {
	return strings.Join(p, "\x00")
}

// NodeID returns the first segment, or "" for an empty path.
func (p Path) NodeID() string {
	if len(p) == 0 {
		return ""
	}
	return p[0]
}

// IsNode reports whether p addresses a whole node.
func (p Path) IsNode() bool {
	return len(p) == 1
}

// Equal reports whether p and q have identical segments.
func (p Path) Equal(q Path) bool {
	return slices.Equal(p, q)
}

// Clone returns a copy of p that does not share storage.
func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	return slices.Clone(p)
}

// Array converts p into an Array of strings, for storing paths in node data.
func (p Path) Array() Array {
	return Strings(p...)
}
