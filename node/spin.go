package node

import (
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"github.com/busrt/busrt/blockpool"
	"github.com/busrt/busrt/frame"
	"github.com/busrt/busrt/session"
)

// outboundRetryInterval bounds how long a Spin call sleeps while the driver is
// back-pressuring the outbound drain, so queued frames are reoffered promptly.
const outboundRetryInterval = time.Millisecond

// SpinOnce runs exactly one scheduling cycle and returns: purge timed-out
// reassemblies, drain every pending inbound frame, fire every due timer, then
// drain the outbound queue as far as the driver accepts. Transient faults
// (checksum failures, pool exhaustion, table overflow) drop the affected
// transfer, bump a diagnostic counter, and let the cycle run on; only a driver
// error aborts.
func (n *Node) SpinOnce() Status {
	var tracker statusTracker
	n.cycle(&tracker)

	if tracker.status.Code != CodeFatal && n.outbound.Len() > 0 {
		tracker.notePending()
	}
	return tracker.status
}

// Spin runs scheduling cycles for the given wall-clock duration, sleeping in the
// driver's Wait between cycles so an idle bus costs no busy polling. The sleep is
// bounded by the nearest timer deadline and the remaining run time, and shortens
// to a retry interval while outbound frames are waiting on a saturated driver.
// Spin returns at the deadline with the accumulated status, or immediately on a
// fatal driver error.
func (n *Node) Spin(duration time.Duration) Status {
	var tracker statusTracker
	deadline := n.clk.Now().Add(duration)

	for {
		n.cycle(&tracker)
		if tracker.status.Code == CodeFatal {
			return tracker.status
		}

		now := n.clk.Now()
		remaining := deadline.Sub(now)
		if remaining <= 0 {
			break
		}

		wait := remaining
		if nearest, ok := n.timers.nearest(); ok {
			if until := nearest.Sub(now); until < wait {
				wait = until
			}
		}
		if n.outbound.Len() > 0 && wait > outboundRetryInterval {
			wait = outboundRetryInterval
		}
		if wait < 0 {
			wait = 0
		}

		if _, err := n.driver.Wait(wait); err != nil {
			tracker.noteFatal(errors.Wrap(err, "waiting for bus activity"))
			return tracker.status
		}
	}

	// Frames that arrived after the final drain still count as leftover work;
	// a zero-timeout wait is a non-blocking readiness poll.
	mask, err := n.driver.Wait(0)
	if err != nil {
		tracker.noteFatal(errors.Wrap(err, "checking for pending bus activity"))
		return tracker.status
	}
	if mask != 0 || n.outbound.Len() > 0 {
		tracker.notePending()
	}
	return tracker.status
}

// cycle is one full pass over the node's work sources.
func (n *Node) cycle(tracker *statusTracker) {
	now := n.clk.Now()

	if purged := n.receivers.PurgeExpired(now); purged > 0 {
		n.diag.ReassemblyTimeouts += uint64(purged)
		tracker.noteTransient(ReasonReassemblyTimeout)
		n.logger.Debug("purged timed-out reassemblies", slog.Int("Count", purged))
	}

	if !n.drainInbound(tracker) {
		return
	}

	n.diag.TimersFired += uint64(n.timers.fireDue(n.clk.Now()))

	n.drainOutbound(tracker)

	blockpool.DebugValidate(n.pool)
}

// drainInbound consumes every frame the driver has pending on every interface.
// Reports false when the driver failed and the cycle must abort.
func (n *Node) drainInbound(tracker *statusTracker) bool {
	for iface := 0; iface < n.driver.InterfaceCount(); iface++ {
		for {
			f, ok, err := n.driver.Receive(iface)
			if err != nil {
				tracker.noteFatal(errors.Wrapf(err, "receiving on interface %d", iface))
				return false
			}
			if !ok {
				break
			}

			n.diag.FramesReceived++
			n.acceptFrame(f, tracker)
		}
	}
	return true
}

// acceptFrame routes one inbound frame through the subscription table and the
// receiver table, folding the outcome into the diagnostics and pass status.
func (n *Node) acceptFrame(f frame.Frame, tracker *statusTracker) {
	if err := f.Validate(); err != nil {
		n.diag.InvalidFrames++
		n.logger.Debug("dropped malformed frame", slog.Any("Error", err))
		return
	}
	if f.Source == n.id {
		// Our own traffic echoed back by the bus.
		n.diag.FramesIgnored++
		return
	}

	sub, subscribed := n.subscriptions.Get(f.Port)
	if !subscribed {
		n.diag.FramesIgnored++
		return
	}

	result, restarted := n.receivers.Accept(f, n.clk.Now(), sub.extent, func(transfer session.Transfer) {
		n.diag.TransfersDelivered++
		sub.handler(transfer)
	})
	if restarted {
		n.diag.OutOfSequence++
		tracker.noteTransient(ReasonOutOfSequence)
	}

	switch result {
	case session.ResultInProgress, session.ResultComplete:
	case session.ResultDuplicate:
		n.diag.Duplicates++
	case session.ResultUnexpected:
		n.diag.FramesIgnored++
	case session.ResultOutOfSequence:
		n.diag.OutOfSequence++
		tracker.noteTransient(ReasonOutOfSequence)
	case session.ResultBadChecksum:
		n.diag.BadChecksums++
		tracker.noteTransient(ReasonBadChecksum)
	case session.ResultTableFull:
		n.diag.TableFull++
		tracker.noteTransient(ReasonTableFull)
	case session.ResultExhausted:
		n.diag.PoolExhausted++
		tracker.noteTransient(ReasonPoolExhausted)
	}
}

// drainOutbound drops expired frames, then offers the queue to the driver in
// priority order until the queue empties or the driver refuses a frame. Every
// accepted frame goes out on all interfaces; an interface that refuses stalls
// the whole drain so frame order is never reordered by back-pressure.
func (n *Node) drainOutbound(tracker *statusTracker) {
	if dropped := n.outbound.PurgeExpired(n.clk.Now()); dropped > 0 {
		n.diag.TTLExpired += uint64(dropped)
		tracker.noteTransient(ReasonTTLExpired)
		n.logger.Debug("dropped expired outbound frames", slog.Int("Count", dropped))
	}

	for {
		f, ok := n.outbound.Peek()
		if !ok {
			return
		}

		for iface := 0; iface < n.driver.InterfaceCount(); iface++ {
			accepted, err := n.driver.Send(iface, f)
			if err != nil {
				tracker.noteFatal(errors.Wrapf(err, "sending on interface %d", iface))
				return
			}
			if !accepted {
				return
			}
		}

		n.outbound.Pop()
		n.diag.FramesSent++
	}
}
