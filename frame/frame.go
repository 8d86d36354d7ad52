// Package frame holds the wire-level primitives shared by every subsystem of the
// node: frame and session identifiers, the priority scale, and the transfer
// integrity checksum. Nothing in this package allocates or blocks.
package frame

import (
	"github.com/cockroachdb/errors"
)

// Priority is a frame-level ordering value. Lower numeric values transmit first,
// matching the arbitration semantics of the underlying bus.
type Priority uint8

const (
	PriorityExceptional Priority = iota
	PriorityImmediate
	PriorityFast
	PriorityHigh
	PriorityNominal
	PriorityLow
	PrioritySlow
	PriorityOptional

	// NumPriorities is the number of distinct priority levels on the wire.
	NumPriorities = 8
)

var priorityMapping = map[Priority]string{
	PriorityExceptional: "PriorityExceptional",
	PriorityImmediate:   "PriorityImmediate",
	PriorityFast:        "PriorityFast",
	PriorityHigh:        "PriorityHigh",
	PriorityNominal:     "PriorityNominal",
	PriorityLow:         "PriorityLow",
	PrioritySlow:        "PrioritySlow",
	PriorityOptional:    "PriorityOptional",
}

func (p Priority) String() string {
	return priorityMapping[p]
}

// PortID identifies a message type on the bus.
type PortID uint16

// NodeID identifies one participant in the pub/sub network.
type NodeID uint8

// TransferID is a small bounded counter distinguishing successive transfers from
// the same (port, source) key. Arithmetic is modulo TransferIDModulo.
type TransferID uint8

// TransferIDModulo is the wraparound range of TransferID, sized for the 5-bit
// sequence counters used by 8-byte-frame buses.
const TransferIDModulo = 32

// Next returns the counter value that follows t, wrapping at TransferIDModulo.
func (t TransferID) Next() TransferID {
	return (t + 1) % TransferIDModulo
}

// SessionKey identifies one reassembly or sequencing session: frames from the same
// source node on the same port belong to the same session.
type SessionKey struct {
	Port   PortID
	Source NodeID
}

const (
	// MaxPayload is the payload capacity of a single frame in bytes.
	MaxPayload = 8

	// CRCSize is the number of trailing bytes a multi-frame transfer spends on the
	// transfer CRC.
	CRCSize = 2
)

// Frame is one unit of bus transmission. A transfer that fits within MaxPayload
// bytes travels as a single frame with Index 0 and End set; longer transfers are
// split across frames with ascending Index values, End set on the tail, and the
// transfer CRC occupying the final CRCSize bytes of the reassembled stream.
type Frame struct {
	Priority Priority
	Port     PortID
	Source   NodeID
	Transfer TransferID
	Index    uint16
	End      bool
	Payload  []byte
}

// Start reports whether this frame opens a transfer.
func (f Frame) Start() bool { return f.Index == 0 }

// SessionKey returns the reassembly key for this frame.
func (f Frame) SessionKey() SessionKey {
	return SessionKey{Port: f.Port, Source: f.Source}
}

// Validate checks the frame's structural invariants. Drivers are expected to hand
// the core only valid frames; the core revalidates at trust boundaries anyway
// because a malformed frame must never cost more than a counter increment.
func (f Frame) Validate() error {
	if f.Priority >= NumPriorities {
		return errors.Newf("frame priority %d is outside the %d-level priority scale", f.Priority, NumPriorities)
	}
	if len(f.Payload) > MaxPayload {
		return errors.Newf("frame payload is %d bytes, but the bus frame limit is %d", len(f.Payload), MaxPayload)
	}
	if f.Transfer >= TransferIDModulo {
		return errors.Newf("transfer id %d is outside the modulo-%d counter range", f.Transfer, TransferIDModulo)
	}
	if len(f.Payload) == 0 && !f.End {
		return errors.New("only a tail frame may carry an empty payload")
	}
	return nil
}
