// Package bridge implements the virtual bus that connects the two execution
// contexts of a dual-context node topology. Frames handed off by one context's
// outbound drain appear as inbound frames to the other context's scheduler,
// preserving both priority ordering and inter-frame ordering the way a physical
// bus would. The bridge is the sole point of cross-context contention, so it is
// the only component in the system that is safe for concurrent use.
package bridge

import (
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/busrt/busrt/frame"
	"github.com/busrt/busrt/transport"
)

// Stats counts one endpoint's hand-off outcomes.
type Stats struct {
	// Relayed is the number of frames accepted from this endpoint's Send.
	Relayed uint64
	// Refused is the number of Send calls turned away because the peer's inbound
	// lane was full; the caller keeps the frame queued and retries.
	Refused uint64
}

// Endpoint is one side of a bridge. It implements transport.Driver, so a node in
// either execution context attaches to it exactly as it would to a physical bus.
type Endpoint struct {
	inbound chan frame.Frame
	events  chan struct{}
	peer    *Endpoint
	closed  *atomic.Bool

	relayed atomic.Uint64
	refused atomic.Uint64
}

var _ transport.Driver = (*Endpoint)(nil)

// New builds a bridge whose two endpoints relay frames to each other. capacity
// bounds the frames in flight per direction; a full lane refuses further Sends
// rather than blocking or growing.
func New(capacity int) (*Endpoint, *Endpoint, error) {
	if capacity <= 0 {
		return nil, nil, errors.Newf("bridge capacity must be positive, but was %d", capacity)
	}

	closed := &atomic.Bool{}
	a := &Endpoint{
		inbound: make(chan frame.Frame, capacity),
		events:  make(chan struct{}, 1),
		closed:  closed,
	}
	b := &Endpoint{
		inbound: make(chan frame.Frame, capacity),
		events:  make(chan struct{}, 1),
		closed:  closed,
	}
	a.peer = b
	b.peer = a

	return a, b, nil
}

// Close permanently shuts the bridge down. Both endpoints report ErrDriverDown
// from then on, which their schedulers surface as a fatal status.
func (e *Endpoint) Close() {
	if e.closed.CompareAndSwap(false, true) {
		e.signal()
		e.peer.signal()
	}
}

// InterfaceCount reports the single virtual interface of a bridge endpoint.
func (e *Endpoint) InterfaceCount() int { return 1 }

// Send relays one frame to the peer context's inbound lane without blocking. A
// full lane returns false; the frame remains the caller's to retry.
func (e *Endpoint) Send(iface int, f frame.Frame) (bool, error) {
	if err := e.check(iface); err != nil {
		return false, err
	}

	select {
	case e.peer.inbound <- f:
		e.relayed.Add(1)
		e.peer.signal()
		return true, nil
	default:
		e.refused.Add(1)
		return false, nil
	}
}

// Receive pops the next relayed frame without blocking.
func (e *Endpoint) Receive(iface int) (frame.Frame, bool, error) {
	if err := e.check(iface); err != nil {
		return frame.Frame{}, false, err
	}

	select {
	case f := <-e.inbound:
		return f, true, nil
	default:
		return frame.Frame{}, false, nil
	}
}

// Wait blocks until frames are pending or the timeout elapses. The returned mask
// has bit 0 set when the endpoint's single interface has pending frames.
func (e *Endpoint) Wait(timeout time.Duration) (uint32, error) {
	if e.closed.Load() {
		return 0, errors.Wrap(transport.ErrDriverDown, "bridge endpoint is closed")
	}

	if len(e.inbound) > 0 {
		return 1, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-e.events:
			if e.closed.Load() {
				return 0, errors.Wrap(transport.ErrDriverDown, "bridge endpoint is closed")
			}
			// Event signals coalesce, so a wakeup may refer to frames that were
			// already drained; only report readiness that is still observable.
			if len(e.inbound) > 0 {
				return 1, nil
			}
		case <-timer.C:
			return 0, nil
		}
	}
}

// Events exposes the endpoint's readiness signal for external event loops.
func (e *Endpoint) Events() <-chan struct{} {
	return e.events
}

// PendingCount reports the frames currently waiting in this endpoint's inbound
// lane.
func (e *Endpoint) PendingCount() int {
	return len(e.inbound)
}

// Stats returns this endpoint's hand-off counters.
func (e *Endpoint) Stats() Stats {
	return Stats{
		Relayed: e.relayed.Load(),
		Refused: e.refused.Load(),
	}
}

func (e *Endpoint) check(iface int) error {
	if e.closed.Load() {
		return errors.Wrap(transport.ErrDriverDown, "bridge endpoint is closed")
	}
	if iface != 0 {
		return errors.Newf("bridge endpoints expose a single interface, but interface %d was addressed", iface)
	}
	return nil
}

func (e *Endpoint) signal() {
	select {
	case e.events <- struct{}{}:
	default:
	}
}
