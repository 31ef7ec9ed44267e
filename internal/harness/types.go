package harness

// Trace event kinds.
const (
	// KindLocal is a change committed by the peer's own transaction.
	KindLocal = "local"
	// KindReplay is an undo or redo change.
	KindReplay = "replay"
	// KindRemote is a change received from the hub.
	KindRemote = "remote"
	// KindJournal is a journal append or state update.
	KindJournal = "journal"
	// KindError is a step that failed with its expected error code.
	KindError = "error"
)

// TraceEvent is one observable effect of a step.
type TraceEvent struct {
	Seq    int64    `json:"seq"`
	Step   int      `json:"step"`
	Peer   string   `json:"peer"`
	Kind   string   `json:"kind"`
	Change string   `json:"change,omitempty"`
	State  string   `json:"state,omitempty"`
	Ops    []string `json:"ops,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: no unexpected step errors and no
	// failed assertions.
	Pass bool `json:"pass"`

	// Trace contains every notification, journal write and expected
	// failure in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Digests maps each peer to its final document digest.
	Digests map[string]string `json:"digests"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Errors:  []string{},
		Digests: make(map[string]string),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) add(e TraceEvent) {
	e.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, e)
}
