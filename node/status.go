package node

// Code classifies the outcome of one scheduling entry point.
type Code uint8

const (
	// CodeOK means the pass completed with no faults and no leftover work.
	CodeOK Code = iota
	// CodePending means the pass completed but work remains unprocessed (for
	// example the driver back-pressured the outbound drain, or the deadline of a
	// Spin call arrived first); the caller should spin again promptly.
	CodePending
	// CodeTransient means at least one transient fault occurred during the pass.
	// The affected transfer or frame was dropped, a diagnostic counter was
	// incremented, and the rest of the pass ran to completion.
	CodeTransient
	// CodeFatal means the bus driver reported an unrecoverable condition. The
	// pass aborted immediately; the core performs no automatic retry, leaving
	// recovery policy to the caller.
	CodeFatal
)

var codeMapping = map[Code]string{
	CodeOK:        "CodeOK",
	CodePending:   "CodePending",
	CodeTransient: "CodeTransient",
	CodeFatal:     "CodeFatal",
}

func (c Code) String() string {
	return codeMapping[c]
}

// Reason identifies the first transient fault class encountered during a pass.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonPoolExhausted
	ReasonTableFull
	ReasonBadChecksum
	ReasonOutOfSequence
	ReasonReassemblyTimeout
	ReasonTTLExpired
)

var reasonMapping = map[Reason]string{
	ReasonNone:              "ReasonNone",
	ReasonPoolExhausted:     "ReasonPoolExhausted",
	ReasonTableFull:         "ReasonTableFull",
	ReasonBadChecksum:       "ReasonBadChecksum",
	ReasonOutOfSequence:     "ReasonOutOfSequence",
	ReasonReassemblyTimeout: "ReasonReassemblyTimeout",
	ReasonTTLExpired:        "ReasonTTLExpired",
}

func (r Reason) String() string {
	return reasonMapping[r]
}

// Status is returned from Spin and SpinOnce. No unwinding-based control flow
// exists anywhere on the data path: every failure the core can encounter arrives
// here as an explicit value, keeping worst-case execution time bounded.
type Status struct {
	Code Code
	// Reason is the first transient fault of the pass, ReasonNone when Code is
	// CodeOK or CodePending. Full per-class counts live in Diagnostics.
	Reason Reason
	// Err is non-nil only when Code is CodeFatal.
	Err error
}

// OK reports a clean pass with no leftover work.
func (s Status) OK() bool { return s.Code == CodeOK }

// Fatal reports an unrecoverable driver condition.
func (s Status) Fatal() bool { return s.Code == CodeFatal }

// statusTracker accumulates the pass outcome: fatal wins over everything,
// transient over pending, and only the first transient reason is kept.
type statusTracker struct {
	status Status
}

func (t *statusTracker) noteTransient(reason Reason) {
	if t.status.Code == CodeFatal {
		return
	}
	if t.status.Code < CodeTransient {
		t.status.Code = CodeTransient
	}
	if t.status.Reason == ReasonNone {
		t.status.Reason = reason
	}
}

func (t *statusTracker) notePending() {
	if t.status.Code == CodeOK {
		t.status.Code = CodePending
	}
}

func (t *statusTracker) noteFatal(err error) {
	t.status.Code = CodeFatal
	t.status.Err = err
}
