package ir

// Version constants for the wire format and the library.
const (
	// WireVersion is the operation line format version.
	WireVersion = "1"

	// EngineVersion is the docmodel library version.
	EngineVersion = "0.1.0"
)
