// Package transport defines the contracts the node core consumes from its
// environment: the bus driver that moves raw frames, and the failure taxonomy that
// separates a busy bus from a dead one. Implementations live outside the core; the
// bridge subpackage provides the in-process virtual bus used by the dual-context
// topology.
package transport

import (
	"time"

	"github.com/busrt/busrt/frame"
)

//go:generate mockgen -destination mocks/driver.go -package mocks github.com/busrt/busrt/transport Driver

// Driver is the physical (or virtual) bus attachment for one node. Every method
// except Wait is non-blocking; nothing in the interface allocates on behalf of the
// core.
//
// A Driver that becomes permanently unusable reports it by returning an error
// wrapping ErrDriverDown from any method; the scheduler treats that as fatal,
// aborts the current cycle, and performs no automatic retry.
type Driver interface {
	// InterfaceCount reports the number of redundant bus interfaces this driver
	// manages, at least 1. Interface indices below this count are valid arguments
	// to Send and Receive.
	InterfaceCount() int

	// Send attempts a non-blocking transmit of one frame on the given interface.
	// It returns false when the interface cannot accept the frame right now
	// (transmit mailbox full); the caller retries on a later cycle.
	Send(iface int, f frame.Frame) (bool, error)

	// Receive attempts a non-blocking read of one frame from the given interface.
	// It returns false when no frame is pending.
	Receive(iface int) (frame.Frame, bool, error)

	// Wait blocks until at least one interface has pending inbound frames or the
	// timeout elapses, whichever is sooner. It returns a bitmask with bit i set
	// when interface i has frames pending; a zero mask means the timeout elapsed.
	Wait(timeout time.Duration) (uint32, error)

	// Events exposes the driver's readiness as a pollable handle, so an external
	// event loop can multiplex the bus alongside other I/O sources instead of
	// calling Wait. The channel is signaled (non-blockingly, possibly coalesced)
	// whenever inbound frames become pending.
	Events() <-chan struct{}
}
