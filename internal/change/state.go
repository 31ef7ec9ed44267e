package change

import (
	"fmt"
	"strconv"
)

// State is a change's position in its lifecycle.
type State uint8

const (
	// Provisional changes are applied locally and may still absorb a
	// following change.
	Provisional State = iota + 1

	// Final changes are closed for merging but not yet sent.
	Final

	// Pending changes were handed to the hub and await confirmation.
	Pending

	// Acknowledged changes were ordered by the hub at a document version.
	Acknowledged
)

func (s State) String() string {
	switch s {
	case Provisional:
		return "provisional"
	case Final:
		return "final"
	case Pending:
		return "pending"
	case Acknowledged:
		return "acknowledged"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// Valid reports whether s is one of the four lifecycle states.
func (s State) Valid() bool {
	return s >= Provisional && s <= Acknowledged
}

// ParseState parses a state name as produced by String.
func ParseState(name string) (State, error) {
	for s := Provisional; s <= Acknowledged; s++ {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown change state %q", name)
}
