package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/busrt/busrt/blockpool"
	"github.com/busrt/busrt/frame"
	"github.com/busrt/busrt/session"
)

const testExtent = 64

func newTable(t *testing.T, poolCapacity, tableCapacity int, policy session.OverflowPolicy) (*session.ReceiverTable, *blockpool.Pool) {
	t.Helper()

	pool, err := blockpool.NewPool(testExtent+frame.CRCSize, poolCapacity)
	require.NoError(t, err)

	seen, err := session.NewTransferIDMap(pool, 8)
	require.NoError(t, err)

	table, err := session.NewReceiverTable(session.ReceiverTableConfig{
		Pool:       pool,
		Capacity:   tableCapacity,
		Timeout:    time.Second,
		Policy:     policy,
		Sequencing: seen,
	})
	require.NoError(t, err)

	return table, pool
}

// fragmentTransfer splits payload into bus frames the way a publisher does:
// single-frame transfers travel as-is, longer ones append the transfer CRC and
// split into MaxPayload chunks.
func fragmentTransfer(port frame.PortID, source frame.NodeID, id frame.TransferID, payload []byte) []frame.Frame {
	meta := frame.Frame{
		Priority: frame.PriorityNominal,
		Port:     port,
		Source:   source,
		Transfer: id,
	}

	if len(payload) <= frame.MaxPayload {
		f := meta
		f.End = true
		f.Payload = payload
		return []frame.Frame{f}
	}

	crc := frame.Checksum(payload)
	stream := make([]byte, 0, len(payload)+frame.CRCSize)
	stream = append(stream, payload...)
	stream = append(stream, byte(crc>>8), byte(crc))

	var frames []frame.Frame
	for index := 0; len(stream) > 0; index++ {
		chunk := frame.MaxPayload
		if chunk > len(stream) {
			chunk = len(stream)
		}

		f := meta
		f.Index = uint16(index)
		f.Payload = stream[:chunk]
		stream = stream[chunk:]
		f.End = len(stream) == 0
		frames = append(frames, f)
	}
	return frames
}

type collector struct {
	transfers []session.Transfer
	payloads  [][]byte
}

func (c *collector) deliver(tr session.Transfer) {
	c.transfers = append(c.transfers, tr)
	c.payloads = append(c.payloads, append([]byte{}, tr.Payload...))
}

func TestSingleFrameTransfer(t *testing.T) {
	table, pool := newTable(t, 4, 2, session.RejectNew)
	baseline := pool.UsedCount()
	now := time.Unix(1000, 0)

	var got collector
	frames := fragmentTransfer(100, 7, 0, []byte{1, 2, 3})
	require.Len(t, frames, 1)

	result, restarted := table.Accept(frames[0], now, testExtent, got.deliver)
	require.Equal(t, session.ResultComplete, result)
	require.False(t, restarted)

	require.Len(t, got.transfers, 1)
	require.Equal(t, []byte{1, 2, 3}, got.payloads[0])
	require.Equal(t, frame.PortID(100), got.transfers[0].Port)
	require.Equal(t, frame.NodeID(7), got.transfers[0].Source)

	// Single-frame transfers never hold reassembly storage.
	require.Equal(t, 0, table.Len())

	// A retransmission of the same transfer is suppressed: at-most-once delivery.
	result, _ = table.Accept(frames[0], now.Add(time.Millisecond), testExtent, got.deliver)
	require.Equal(t, session.ResultDuplicate, result)
	require.Len(t, got.transfers, 1)

	// The sequencing entry is the only block the table now owns.
	require.Equal(t, baseline+1, pool.UsedCount())
}

func TestMultiFrameTransfer(t *testing.T) {
	table, pool := newTable(t, 4, 2, session.RejectNew)
	now := time.Unix(1000, 0)

	payload := make([]byte, 30)
	for i := range payload {
		payload[i] = byte(i * 3)
	}
	frames := fragmentTransfer(200, 9, 0, payload)
	require.Greater(t, len(frames), 1)

	var got collector
	for i, f := range frames[:len(frames)-1] {
		result, restarted := table.Accept(f, now, testExtent, got.deliver)
		require.Equal(t, session.ResultInProgress, result, "frame %d", i)
		require.False(t, restarted)
	}
	require.Equal(t, 1, table.Len())

	result, _ := table.Accept(frames[len(frames)-1], now, testExtent, got.deliver)
	require.Equal(t, session.ResultComplete, result)
	require.Len(t, got.transfers, 1)
	require.Equal(t, payload, got.payloads[0])

	// Reassembly storage is reclaimed after the callback returns; only the
	// sequencing entry remains.
	require.Equal(t, 0, table.Len())
	require.Equal(t, 1, pool.UsedCount())
}

func TestBadChecksumDiscards(t *testing.T) {
	table, pool := newTable(t, 4, 2, session.RejectNew)
	now := time.Unix(1000, 0)

	frames := fragmentTransfer(200, 9, 0, make([]byte, 20))
	frames[1].Payload = append([]byte{}, frames[1].Payload...)
	frames[1].Payload[0] ^= 0x40

	var got collector
	var result session.Result
	for _, f := range frames {
		result, _ = table.Accept(f, now, testExtent, got.deliver)
	}

	require.Equal(t, session.ResultBadChecksum, result)
	require.Empty(t, got.transfers)
	require.Equal(t, 0, table.Len())
	require.Equal(t, 0, pool.UsedCount())
}

func TestOutOfSequenceDiscards(t *testing.T) {
	table, _ := newTable(t, 4, 2, session.RejectNew)
	now := time.Unix(1000, 0)

	frames := fragmentTransfer(200, 9, 0, make([]byte, 30))

	var got collector
	result, _ := table.Accept(frames[0], now, testExtent, got.deliver)
	require.Equal(t, session.ResultInProgress, result)

	// Skipping an index discards the whole in-progress state.
	result, restarted := table.Accept(frames[2], now, testExtent, got.deliver)
	require.Equal(t, session.ResultOutOfSequence, result)
	require.False(t, restarted)
	require.Equal(t, 0, table.Len())

	// With no tracked state, a continuation frame cannot be placed.
	result, _ = table.Accept(frames[1], now, testExtent, got.deliver)
	require.Equal(t, session.ResultUnexpected, result)
	require.Empty(t, got.transfers)
}

func TestRestartFromNewTransferStart(t *testing.T) {
	table, _ := newTable(t, 4, 2, session.RejectNew)
	now := time.Unix(1000, 0)

	stale := fragmentTransfer(200, 9, 0, make([]byte, 30))
	fresh := fragmentTransfer(200, 9, 1, []byte{9, 9})

	var got collector
	result, _ := table.Accept(stale[0], now, testExtent, got.deliver)
	require.Equal(t, session.ResultInProgress, result)

	// A start frame for a different transfer discards the partial state and
	// restarts from this frame in the same call.
	result, restarted := table.Accept(fresh[0], now, testExtent, got.deliver)
	require.Equal(t, session.ResultComplete, result)
	require.True(t, restarted)
	require.Len(t, got.transfers, 1)
	require.Equal(t, []byte{9, 9}, got.payloads[0])
}

func TestReassemblyTimeoutPurge(t *testing.T) {
	table, pool := newTable(t, 4, 2, session.RejectNew)
	now := time.Unix(1000, 0)
	baseline := pool.UsedCount()

	frames := fragmentTransfer(200, 9, 0, make([]byte, 30))

	var got collector
	for _, f := range frames[:len(frames)-1] {
		_, _ = table.Accept(f, now, testExtent, got.deliver)
	}
	require.Equal(t, 1, table.Len())

	require.Equal(t, 0, table.PurgeExpired(now.Add(999*time.Millisecond)))

	// Held past the timeout without its tail, the transfer is purged: block
	// count returns to baseline and no callback ever fires.
	require.Equal(t, 1, table.PurgeExpired(now.Add(time.Second)))
	require.Equal(t, 0, table.Len())
	require.Equal(t, baseline, pool.UsedCount())
	require.Empty(t, got.transfers)
}

func TestOverflowRejectNew(t *testing.T) {
	table, _ := newTable(t, 8, 1, session.RejectNew)
	now := time.Unix(1000, 0)

	first := fragmentTransfer(200, 9, 0, make([]byte, 30))
	second := fragmentTransfer(201, 3, 0, make([]byte, 30))

	var got collector
	result, _ := table.Accept(first[0], now, testExtent, got.deliver)
	require.Equal(t, session.ResultInProgress, result)

	result, _ = table.Accept(second[0], now, testExtent, got.deliver)
	require.Equal(t, session.ResultTableFull, result)

	// The in-progress transfer is untouched and still completes.
	for _, f := range first[1:] {
		result, _ = table.Accept(f, now, testExtent, got.deliver)
	}
	require.Equal(t, session.ResultComplete, result)
	require.Len(t, got.transfers, 1)
}

func TestOverflowEvictOldest(t *testing.T) {
	table, _ := newTable(t, 8, 1, session.EvictOldest)
	now := time.Unix(1000, 0)

	first := fragmentTransfer(200, 9, 0, make([]byte, 30))
	second := fragmentTransfer(201, 3, 0, make([]byte, 30))

	var got collector
	result, _ := table.Accept(first[0], now, testExtent, got.deliver)
	require.Equal(t, session.ResultInProgress, result)

	result, _ = table.Accept(second[0], now.Add(time.Millisecond), testExtent, got.deliver)
	require.Equal(t, session.ResultInProgress, result)
	require.Equal(t, 1, table.Len())

	// The evicted transfer's continuation now has nowhere to land.
	result, _ = table.Accept(first[1], now.Add(2*time.Millisecond), testExtent, got.deliver)
	require.Equal(t, session.ResultUnexpected, result)
}

func TestExtentTruncation(t *testing.T) {
	table, _ := newTable(t, 4, 2, session.RejectNew)
	now := time.Unix(1000, 0)

	payload := make([]byte, 48)
	for i := range payload {
		payload[i] = byte(i)
	}
	frames := fragmentTransfer(200, 9, 0, payload)

	// The subscription extent is smaller than the sender's payload: the buffer
	// truncates, but the running CRC covers the full stream so the transfer
	// still validates.
	const shortExtent = 16

	var got collector
	var result session.Result
	for _, f := range frames {
		result, _ = table.Accept(f, now, shortExtent, got.deliver)
	}
	require.Equal(t, session.ResultComplete, result)
	require.Len(t, got.transfers, 1)
	require.Equal(t, payload[:shortExtent], got.payloads[0])
}

func TestPoolExhaustionRejectsTransfer(t *testing.T) {
	table, pool := newTable(t, 1, 2, session.RejectNew)
	now := time.Unix(1000, 0)

	// Consume the only block so reassembly cannot get a payload buffer.
	_, err := pool.Allocate()
	require.NoError(t, err)

	frames := fragmentTransfer(200, 9, 0, make([]byte, 30))

	var got collector
	result, _ := table.Accept(frames[0], now, testExtent, got.deliver)
	require.Equal(t, session.ResultExhausted, result)
	require.Equal(t, 0, table.Len())
	require.Empty(t, got.transfers)
}
