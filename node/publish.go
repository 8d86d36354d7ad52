package node

import (
	"github.com/cockroachdb/errors"

	"github.com/busrt/busrt/blockpool"
	"github.com/busrt/busrt/frame"
)

// Publish enqueues one transfer for transmission at the given priority. The
// payload is fragmented on the spot: transfers up to frame.MaxPayload bytes
// travel as a single frame, longer ones append the transfer CRC and split into
// frame.MaxPayload chunks. Frames carry a TTL deadline; if the bus stays
// unreachable past it they are dropped by the outbound drain instead of
// accumulating.
//
// Publish fails with blockpool.ErrExhausted when the pool cannot hold the whole
// transfer- checked up front, so a failed publish never leaves a partial
// transfer queued. It never blocks.
func (n *Node) Publish(port frame.PortID, priority frame.Priority, payload []byte) error {
	if priority >= frame.NumPriorities {
		return errors.Newf("priority %d is outside the %d-level priority scale", priority, frame.NumPriorities)
	}
	if len(payload) == 0 {
		return errors.New("a transfer requires a payload")
	}

	streamLen := len(payload)
	frameCount := 1
	if streamLen > frame.MaxPayload {
		streamLen += frame.CRCSize
		frameCount = (streamLen + frame.MaxPayload - 1) / frame.MaxPayload
	}
	if frameCount > int(^uint16(0)) {
		return errors.Newf("payload of %d bytes needs %d frames, which exceeds the frame index range", len(payload), frameCount)
	}

	key := frame.SessionKey{Port: port, Source: n.id}
	transferID, err := n.txIDs.Next(key)
	if err != nil {
		return errors.Wrapf(err, "cannot sequence a transfer on port %d", port)
	}

	if n.pool.FreeCount() < frameCount {
		return errors.Wrapf(blockpool.ErrExhausted, "transfer needs %d frames but only %d blocks are free", frameCount, n.pool.FreeCount())
	}

	deadline := n.clk.Now().Add(n.txTTL)
	meta := frame.Frame{
		Priority: priority,
		Port:     port,
		Source:   n.id,
		Transfer: transferID,
	}

	if frameCount == 1 {
		f := meta
		f.End = true
		f.Payload = payload
		if err := n.outbound.Push(f, deadline); err != nil {
			return err
		}
		n.diag.TransfersPublished++
		return nil
	}

	crc := frame.Checksum(payload)
	trailer := [frame.CRCSize]byte{byte(crc >> 8), byte(crc)}

	var chunk [frame.MaxPayload]byte
	offset := 0
	for index := 0; offset < streamLen; index++ {
		filled := 0
		for filled < frame.MaxPayload && offset < streamLen {
			if offset < len(payload) {
				chunk[filled] = payload[offset]
			} else {
				chunk[filled] = trailer[offset-len(payload)]
			}
			filled++
			offset++
		}

		f := meta
		f.Index = uint16(index)
		f.End = offset == streamLen
		f.Payload = chunk[:filled]
		if err := n.outbound.Push(f, deadline); err != nil {
			// Unreachable after the free-count check; surface it anyway rather
			// than leave the transfer half queued silently.
			return errors.Wrapf(err, "transfer on port %d was partially queued", port)
		}
	}

	n.diag.TransfersPublished++
	return nil
}
