package session

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"

	"github.com/busrt/busrt/blockpool"
	"github.com/busrt/busrt/frame"
)

// OverflowPolicy selects what a ReceiverTable does when a new transfer arrives
// while every state slot is occupied.
type OverflowPolicy uint8

const (
	// RejectNew refuses the new transfer. Discarding data mid-transfer is worse
	// than refusing a new one, so this is the default.
	RejectNew OverflowPolicy = iota
	// EvictOldest discards the in-progress state with the least recent activity
	// to make room.
	EvictOldest
)

var overflowPolicyMapping = map[OverflowPolicy]string{
	RejectNew:   "RejectNew",
	EvictOldest: "EvictOldest",
}

func (p OverflowPolicy) String() string {
	return overflowPolicyMapping[p]
}

// Result describes what a ReceiverTable did with one inbound frame.
type Result uint8

const (
	// ResultInProgress means the frame was absorbed into an incomplete transfer.
	ResultInProgress Result = iota
	// ResultComplete means the frame finished a transfer that was validated and
	// delivered synchronously during Accept.
	ResultComplete
	// ResultDuplicate means the frame repeats a transfer that was already
	// delivered; delivery stays at-most-once.
	ResultDuplicate
	// ResultUnexpected means a continuation frame arrived with no tracked state.
	ResultUnexpected
	// ResultOutOfSequence means the tracked state was discarded because the frame
	// did not continue it, and the frame could not restart a transfer either.
	ResultOutOfSequence
	// ResultBadChecksum means the tail frame arrived but the transfer CRC did not
	// verify; the state was discarded.
	ResultBadChecksum
	// ResultTableFull means a new transfer was refused because every state slot is
	// occupied and the table's policy is RejectNew.
	ResultTableFull
	// ResultExhausted means a new transfer was refused because the block pool
	// could not supply a payload buffer.
	ResultExhausted
)

var resultMapping = map[Result]string{
	ResultInProgress:    "ResultInProgress",
	ResultComplete:      "ResultComplete",
	ResultDuplicate:     "ResultDuplicate",
	ResultUnexpected:    "ResultUnexpected",
	ResultOutOfSequence: "ResultOutOfSequence",
	ResultBadChecksum:   "ResultBadChecksum",
	ResultTableFull:     "ResultTableFull",
	ResultExhausted:     "ResultExhausted",
}

func (r Result) String() string {
	return resultMapping[r]
}

// Transfer is one completed logical message handed to a subscriber callback. The
// Payload slice points into pool-owned storage and is valid only for the duration
// of the callback invocation- callers must copy anything they intend to retain.
type Transfer struct {
	Priority  frame.Priority
	Port      frame.PortID
	Source    frame.NodeID
	ID        frame.TransferID
	Payload   []byte
	Timestamp time.Time
}

// receiverState is one in-progress multi-frame reassembly. Payload accumulates in
// a pool block; the running CRC covers every stream byte even when the buffer
// truncates at the subscription extent, so integrity checking is independent of
// buffer capacity.
type receiverState struct {
	inUse     bool
	key       frame.SessionKey
	block     blockpool.Block
	buffer    []byte
	extent    int
	fill      int
	streamLen int
	crc       frame.CRC16
	transfer  frame.TransferID
	nextIndex uint16
	priority  frame.Priority
	deadline  time.Time
}

// ReceiverTableConfig carries the construction parameters for a ReceiverTable.
type ReceiverTableConfig struct {
	// Pool supplies payload buffers. One block is owned per in-progress transfer.
	Pool *blockpool.Pool
	// Capacity bounds the number of simultaneously tracked transfers.
	Capacity int
	// Timeout is the maximum age of a state since its last frame before it is
	// purged by PurgeExpired.
	Timeout time.Duration
	// Policy selects the behavior when a new transfer arrives at capacity.
	Policy OverflowPolicy
	// Sequencing remembers the last delivered transfer id per key, keeping
	// delivery at-most-once across retransmissions.
	Sequencing *TransferIDMap
}

// ReceiverTable tracks every in-progress multi-frame reassembly for one execution
// context. Lookup by (port, source) key is O(1); capacity, timeout, and overflow
// policy are fixed at construction.
type ReceiverTable struct {
	pool       *blockpool.Pool
	timeout    time.Duration
	policy     OverflowPolicy
	sequencing *TransferIDMap

	index     *swiss.Map[frame.SessionKey, int32]
	states    []receiverState
	freeSlots []int32
}

// NewReceiverTable builds a table from config.
func NewReceiverTable(config ReceiverTableConfig) (*ReceiverTable, error) {
	if config.Pool == nil {
		return nil, errors.New("a ReceiverTable requires a backing block pool")
	}
	if config.Capacity <= 0 {
		return nil, errors.Newf("receiver capacity must be positive, but was %d", config.Capacity)
	}
	if config.Timeout <= 0 {
		return nil, errors.Newf("reassembly timeout must be positive, but was %s", config.Timeout)
	}
	if config.Sequencing == nil {
		return nil, errors.New("a ReceiverTable requires a sequencing map for duplicate suppression")
	}

	table := &ReceiverTable{
		pool:       config.Pool,
		timeout:    config.Timeout,
		policy:     config.Policy,
		sequencing: config.Sequencing,
		index:      swiss.NewMap[frame.SessionKey, int32](uint32(config.Capacity)),
		states:     make([]receiverState, config.Capacity),
		freeSlots:  make([]int32, 0, config.Capacity),
	}

	for i := config.Capacity - 1; i >= 0; i-- {
		table.freeSlots = append(table.freeSlots, int32(i))
	}

	return table, nil
}

// Accept feeds one inbound frame into reassembly. extent is the subscription's
// maximum serialized payload length; stream bytes past it are dropped from the
// buffer but still feed the running CRC. When the frame completes a transfer that
// validates, deliver is invoked synchronously before Accept returns and the
// transfer's payload storage is reclaimed immediately afterward.
//
// A frame whose transfer id or index does not continue the tracked state discards
// the entire in-progress state- losing a partial transfer is preferred over
// delivering corrupted data. If the offending frame is itself tagged as a transfer
// start, a fresh state is begun from it in the same call; restarted reports when
// that happened so the caller can count the discarded transfer.
func (t *ReceiverTable) Accept(f frame.Frame, now time.Time, extent int, deliver func(Transfer)) (result Result, restarted bool) {
	key := f.SessionKey()

	if slot, tracked := t.index.Get(key); tracked {
		state := &t.states[slot]
		if f.Transfer == state.transfer && f.Index == state.nextIndex {
			return t.absorb(state, f, now, deliver), false
		}

		t.release(slot)
		if !f.Start() {
			return ResultOutOfSequence, false
		}
		restarted = true
	} else if !f.Start() {
		return ResultUnexpected, false
	}

	if last, ok := t.sequencing.Last(key); ok && last == f.Transfer {
		return ResultDuplicate, restarted
	}

	if f.End {
		// Single-frame transfer: no reassembly state and no transfer CRC.
		deliver(Transfer{
			Priority:  f.Priority,
			Port:      f.Port,
			Source:    f.Source,
			ID:        f.Transfer,
			Payload:   f.Payload,
			Timestamp: now,
		})
		t.recordDelivered(key, f.Transfer)
		return ResultComplete, restarted
	}

	slot, result := t.acquireSlot(now)
	if result != ResultInProgress {
		return result, restarted
	}

	block, err := t.pool.Allocate()
	if err != nil {
		t.freeSlots = append(t.freeSlots, slot)
		return ResultExhausted, restarted
	}

	bufCap := extent + frame.CRCSize
	if bufCap > len(block.Bytes()) {
		bufCap = len(block.Bytes())
	}

	state := &t.states[slot]
	*state = receiverState{
		inUse:    true,
		key:      key,
		block:    block,
		buffer:   block.Bytes()[:bufCap],
		extent:   extent,
		crc:      frame.NewCRC16(),
		transfer: f.Transfer,
		priority: f.Priority,
	}
	t.index.Put(key, slot)

	return t.absorb(state, f, now, deliver), restarted
}

// PurgeExpired discards every state whose last-frame timestamp is older than the
// configured timeout, returning payload blocks to the pool. It returns the number
// of transfers purged. The sweep is bounded by the table's capacity, so it runs
// inline at the head of every spin cycle.
func (t *ReceiverTable) PurgeExpired(now time.Time) int {
	purged := 0
	for i := range t.states {
		if t.states[i].inUse && !now.Before(t.states[i].deadline) {
			t.release(int32(i))
			purged++
		}
	}
	return purged
}

// Len returns the number of in-progress transfers.
func (t *ReceiverTable) Len() int {
	return t.index.Count()
}

// Capacity returns the maximum number of simultaneously tracked transfers.
func (t *ReceiverTable) Capacity() int {
	return len(t.states)
}

func (t *ReceiverTable) absorb(state *receiverState, f frame.Frame, now time.Time, deliver func(Transfer)) Result {
	state.crc = state.crc.Update(f.Payload)
	state.streamLen += len(f.Payload)

	room := len(state.buffer) - state.fill
	if room > 0 {
		copied := copy(state.buffer[state.fill:], f.Payload)
		state.fill += copied
	}

	state.nextIndex++
	state.deadline = now.Add(t.timeout)

	if !f.End {
		return ResultInProgress
	}

	if !state.crc.Residue() {
		t.release(t.slotOf(state))
		return ResultBadChecksum
	}

	payloadLen := state.fill
	if state.streamLen == state.fill {
		// The trailing CRC bytes made it into the buffer; exclude them.
		payloadLen -= frame.CRCSize
	}
	if payloadLen > state.extent {
		payloadLen = state.extent
	}
	if payloadLen < 0 {
		payloadLen = 0
	}

	deliver(Transfer{
		Priority:  state.priority,
		Port:      state.key.Port,
		Source:    state.key.Source,
		ID:        state.transfer,
		Payload:   state.buffer[:payloadLen],
		Timestamp: now,
	})
	t.recordDelivered(state.key, state.transfer)
	t.release(t.slotOf(state))

	return ResultComplete
}

func (t *ReceiverTable) acquireSlot(now time.Time) (int32, Result) {
	if len(t.freeSlots) > 0 {
		slot := t.freeSlots[len(t.freeSlots)-1]
		t.freeSlots = t.freeSlots[:len(t.freeSlots)-1]
		return slot, ResultInProgress
	}

	if t.policy == RejectNew {
		return 0, ResultTableFull
	}

	oldest := int32(-1)
	for i := range t.states {
		if !t.states[i].inUse {
			continue
		}
		if oldest < 0 || t.states[i].deadline.Before(t.states[oldest].deadline) {
			oldest = int32(i)
		}
	}
	if oldest < 0 {
		return 0, ResultTableFull
	}

	t.release(oldest)
	slot := t.freeSlots[len(t.freeSlots)-1]
	t.freeSlots = t.freeSlots[:len(t.freeSlots)-1]
	return slot, ResultInProgress
}

func (t *ReceiverTable) recordDelivered(key frame.SessionKey, id frame.TransferID) {
	// A saturated sequencing map means future duplicates on this key cannot be
	// suppressed; delivery already happened, so the condition is observable only
	// through the map's Len reaching its Capacity.
	_ = t.sequencing.Record(key, id)
}

func (t *ReceiverTable) release(slot int32) {
	state := &t.states[slot]
	_ = t.pool.Free(state.block)
	t.index.Delete(state.key)
	*state = receiverState{}
	t.freeSlots = append(t.freeSlots, slot)
}

func (t *ReceiverTable) slotOf(state *receiverState) int32 {
	slot, _ := t.index.Get(state.key)
	return slot
}
